package service

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"referral-chat/internal/domain"
)

//go:embed assets/default_assessment.yaml
var defaultAssessmentYAML []byte

var ErrInvalidScript = errors.New("invalid assessment script")

// AssessmentScript es el cuestionario si/no que recorre el motor. Es inmutable
// despues de cargarse.
type AssessmentScript struct {
	version   string
	intro     string
	summary   string
	questions []domain.AssessmentQuestion
	critical  map[string]bool
	index     map[string]int
}

type scriptDocument struct {
	Version             string                      `yaml:"version"`
	Intro               string                      `yaml:"intro"`
	Summary             string                      `yaml:"summary"`
	CriticalQuestionIDs []string                    `yaml:"critical_question_ids"`
	Questions           []domain.AssessmentQuestion `yaml:"questions"`
}

// LoadAssessmentScript lee el script desde path; con path vacio usa el script
// embebido.
func LoadAssessmentScript(path string) (*AssessmentScript, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return ParseAssessmentScript(defaultAssessmentYAML)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read assessment script: %w", err)
	}
	return ParseAssessmentScript(data)
}

func ParseAssessmentScript(data []byte) (*AssessmentScript, error) {
	var doc scriptDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScript, err)
	}
	script, err := NewAssessmentScript(doc.Version, doc.Questions, doc.CriticalQuestionIDs)
	if err != nil {
		return nil, err
	}
	script.intro = strings.TrimSpace(doc.Intro)
	script.summary = strings.TrimSpace(doc.Summary)
	return script, nil
}

// NewAssessmentScript valida y construye un script. Un skip_to inexistente o
// hacia atras se rechaza aqui, no en tiempo de ejecucion.
func NewAssessmentScript(version string, questions []domain.AssessmentQuestion, criticalIDs []string) (*AssessmentScript, error) {
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: no questions", ErrInvalidScript)
	}
	s := &AssessmentScript{
		version:   strings.TrimSpace(version),
		questions: make([]domain.AssessmentQuestion, 0, len(questions)),
		critical:  make(map[string]bool, len(criticalIDs)),
		index:     make(map[string]int, len(questions)),
	}
	if s.version == "" {
		s.version = "unversioned"
	}

	for i, q := range questions {
		q.ID = strings.TrimSpace(q.ID)
		q.Prompt = strings.TrimSpace(q.Prompt)
		if q.ID == "" {
			return nil, fmt.Errorf("%w: question %d has no id", ErrInvalidScript, i)
		}
		if q.Prompt == "" {
			return nil, fmt.Errorf("%w: question %q has no prompt", ErrInvalidScript, q.ID)
		}
		if _, dup := s.index[q.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate question id %q", ErrInvalidScript, q.ID)
		}
		if q.SkipLogic != nil {
			skip := *q.SkipLogic
			skip.OnAnswer = strings.ToLower(strings.TrimSpace(skip.OnAnswer))
			skip.SkipTo = strings.TrimSpace(skip.SkipTo)
			q.SkipLogic = &skip
		}
		s.index[q.ID] = i
		s.questions = append(s.questions, q)
	}

	for i, q := range s.questions {
		if q.SkipLogic == nil {
			continue
		}
		if q.SkipLogic.OnAnswer != domain.AnswerYes && q.SkipLogic.OnAnswer != domain.AnswerNo {
			return nil, fmt.Errorf("%w: question %q skip on_answer must be yes or no", ErrInvalidScript, q.ID)
		}
		target, ok := s.index[q.SkipLogic.SkipTo]
		if !ok {
			return nil, fmt.Errorf("%w: question %q skips to unknown question %q", ErrInvalidScript, q.ID, q.SkipLogic.SkipTo)
		}
		if target <= i {
			return nil, fmt.Errorf("%w: question %q skips backwards to %q", ErrInvalidScript, q.ID, q.SkipLogic.SkipTo)
		}
	}

	for _, id := range criticalIDs {
		id = strings.TrimSpace(id)
		if _, ok := s.index[id]; !ok {
			return nil, fmt.Errorf("%w: unknown critical question %q", ErrInvalidScript, id)
		}
		s.critical[id] = true
	}
	return s, nil
}

func (s *AssessmentScript) Version() string { return s.version }

func (s *AssessmentScript) Len() int { return len(s.questions) }

func (s *AssessmentScript) Intro() string { return s.intro }

// Question devuelve la pregunta i; ok es false fuera de rango.
func (s *AssessmentScript) Question(i int) (domain.AssessmentQuestion, bool) {
	if i < 0 || i >= len(s.questions) {
		return domain.AssessmentQuestion{}, false
	}
	return s.questions[i], true
}

func (s *AssessmentScript) Questions() []domain.AssessmentQuestion {
	out := make([]domain.AssessmentQuestion, len(s.questions))
	copy(out, s.questions)
	return out
}

func (s *AssessmentScript) IndexOf(questionID string) (int, bool) {
	i, ok := s.index[questionID]
	return i, ok
}

// NextIndex aplica la regla de salto: si la respuesta coincide con on_answer
// se salta a skip_to, si no se avanza uno. Len() significa fin del script.
func (s *AssessmentScript) NextIndex(i int, answer string) int {
	q, ok := s.Question(i)
	if !ok {
		return len(s.questions)
	}
	if q.SkipLogic != nil && q.SkipLogic.OnAnswer == answer {
		return s.index[q.SkipLogic.SkipTo]
	}
	return i + 1
}

func (s *AssessmentScript) IsCritical(questionID string) bool {
	return s.critical[questionID]
}

func (s *AssessmentScript) summaryText() string {
	if s.summary != "" {
		return s.summary
	}
	return "Thank you for answering. A member of the counseling team will follow up here."
}

package model

import (
	"fmt"
	"time"
)

// Audience tells who a question is meant for.
type Audience string

const (
	AudienceAll      Audience = "all"
	AudienceBuilders Audience = "builders"
)

func (a Audience) Valid() bool {
	return a == AudienceAll || a == AudienceBuilders
}

func (a Audience) Label() string {
	switch a {
	case AudienceBuilders:
		return "Builders"
	case AudienceAll:
		return "Everyone"
	}
	return string(a)
}

// Role is the respondent classification stored on a response.
type Role string

const (
	RoleGeneral Role = "all"
	RoleBuilder Role = "builders"
)

var Roles = []Role{RoleGeneral, RoleBuilder}

func (r Role) Valid() bool {
	return r == RoleGeneral || r == RoleBuilder
}

func (r Role) Label() string {
	switch r {
	case RoleGeneral:
		return "General respondent"
	case RoleBuilder:
		return "Builder / technical"
	}
	return string(r)
}

type Question struct {
	ID             int              `json:"id"`
	Category       string           `json:"category"`
	Prompt         string           `json:"prompt"`
	TargetAudience Audience         `json:"target_audience"`
	Note           string           `json:"note"`
	Active         bool             `json:"is_active"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	Options        []QuestionOption `json:"options"`
}

func (q Question) BuildersOnly() bool {
	return q.TargetAudience == AudienceBuilders
}

// Option looks up an option by its value token.
func (q Question) Option(value string) (QuestionOption, bool) {
	for _, o := range q.Options {
		if o.Value == value {
			return o, true
		}
	}
	return QuestionOption{}, false
}

func (q Question) String() string {
	prompt := []rune(q.Prompt)
	if len(prompt) > 50 {
		prompt = prompt[:50]
	}
	return fmt.Sprintf("%d. %s", q.ID, string(prompt))
}

type QuestionOption struct {
	ID         int    `json:"id,omitempty"`
	QuestionID int    `json:"question_id,omitempty"`
	Value      string `json:"value"`
	Label      string `json:"label"`
	Order      int    `json:"order"`
}

type SurveyResponse struct {
	ID        int            `json:"id"`
	Name      string         `json:"respondent_name"`
	Email     string         `json:"respondent_email"`
	Role      Role           `json:"respondent_role"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Answers   []SurveyAnswer `json:"answers,omitempty"`
}

func (r SurveyResponse) String() string {
	identity := r.Name
	if identity == "" {
		identity = "Anonymous responder"
	}
	return fmt.Sprintf("%s (%s)", identity, r.Role.Label())
}

type SurveyAnswer struct {
	ID         int       `json:"id"`
	ResponseID int       `json:"response_id"`
	QuestionID int       `json:"question_id"`
	Text       string    `json:"answer_text"`
	CreatedAt  time.Time `json:"created_at"`
}

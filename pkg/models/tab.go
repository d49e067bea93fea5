package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// QuestionType enumerates the supported question input types
type QuestionType string

const (
	QuestionMultiChoice QuestionType = "multichoice"
	QuestionNumber      QuestionType = "number"
	QuestionText        QuestionType = "text"
	QuestionTelephone   QuestionType = "telephone"
	QuestionEmail       QuestionType = "email"
	QuestionURL         QuestionType = "url"
	QuestionDate        QuestionType = "date"
)

// NumberRange bounds a number question when UseRange is set
type NumberRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Question represents a single typed question on the product page
type Question struct {
	Name           string       `json:"name"`
	Type           QuestionType `json:"type"`
	Description    string       `json:"description,omitempty"`
	Choices        []string     `json:"choices,omitempty"`        // multichoice only
	IsSingleChoice bool         `json:"isSingleChoice,omitempty"` // multichoice only
	Range          *NumberRange `json:"range,omitempty"`          // number only
	UseRange       bool         `json:"useRange,omitempty"`       // number only
}

// Validate checks the per-type invariants of a question
func (q *Question) Validate() error {
	switch q.Type {
	case QuestionMultiChoice:
		seen := make(map[string]bool, len(q.Choices))
		for _, c := range q.Choices {
			c = strings.TrimSpace(c)
			if c == "" {
				return fmt.Errorf("question %q: empty choice", q.Name)
			}
			if seen[c] {
				return fmt.Errorf("question %q: duplicate choice %q", q.Name, c)
			}
			seen[c] = true
		}
		if len(seen) < 2 {
			return fmt.Errorf("question %q: multichoice requires at least 2 choices", q.Name)
		}
	case QuestionNumber:
		if q.UseRange {
			if q.Range == nil {
				return fmt.Errorf("question %q: useRange set without range", q.Name)
			}
			if q.Range.Min >= q.Range.Max {
				return fmt.Errorf("question %q: range min must be less than max", q.Name)
			}
		}
	case QuestionText, QuestionTelephone, QuestionEmail, QuestionURL, QuestionDate:
		// no extra constraints
	default:
		return fmt.Errorf("question %q: unknown type %q", q.Name, q.Type)
	}
	return nil
}

// ValidateQuestions validates every question in a tab payload
func ValidateQuestions(questions []Question) error {
	for i := range questions {
		if err := questions[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Tab is a user's saved workspace: one input source, a title and a set of questions
type Tab struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	UserID      string     `json:"userId"`
	Description string     `json:"description"`
	TextInput   string     `json:"textInput"`
	URLInput    string     `json:"urlInput"`
	FileInput   string     `json:"fileInput"`
	Questions   []Question `json:"questions"`
	CreatedAt   time.Time  `json:"createdAt,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt,omitempty"`
}

// TabRecord is the raw stored row: header columns plus the undecoded data blob.
// The read endpoint returns this shape as-is; decoding the blob is the
// consumer's job.
type TabRecord struct {
	ID          string    `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	UserID      string    `json:"userId" db:"user_id"`
	Description string    `json:"description" db:"description"`
	Data        string    `json:"data" db:"data"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

// TabSummary is the header-only projection used by the history sidebar
type TabSummary struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	UserID      string    `json:"userId"`
	Description string    `json:"description"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TabData is the schemaless portion of a tab, serialized into the data column
type TabData struct {
	Questions []Question `json:"questions"`
	TextInput string     `json:"textInput"`
	URLInput  string     `json:"urlInput"`
	FileInput string     `json:"fileInput"`
}

// EncodeTabData serializes the payload for the data column
func EncodeTabData(d TabData) (string, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to encode tab data: %w", err)
	}
	return string(raw), nil
}

// DecodeTabData parses the opaque data column back into typed payload fields.
// Every boundary that needs typed access goes through here, so the parsing
// logic lives in exactly one place.
func DecodeTabData(raw string) (TabData, error) {
	var d TabData
	if raw == "" {
		return d, nil
	}
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return TabData{}, fmt.Errorf("failed to decode tab data: %w", err)
	}
	return d, nil
}

// DecodeRecord assembles a fully typed Tab from a raw stored row
func DecodeRecord(rec *TabRecord) (*Tab, error) {
	data, err := DecodeTabData(rec.Data)
	if err != nil {
		return nil, err
	}
	return &Tab{
		ID:          rec.ID,
		Title:       rec.Title,
		UserID:      rec.UserID,
		Description: rec.Description,
		TextInput:   data.TextInput,
		URLInput:    data.URLInput,
		FileInput:   data.FileInput,
		Questions:   data.Questions,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}, nil
}

// SlugFromTitle derives the tab id from its title on first save:
// lowercased, spaces replaced with hyphens
func SlugFromTitle(title string) string {
	return strings.ReplaceAll(strings.ToLower(title), " ", "-")
}

// NewTabInput carries the fields needed to create a tab (no id yet)
type NewTabInput struct {
	Title       string     `json:"title"`
	UserID      string     `json:"userId"`
	Description string     `json:"description"`
	TextInput   string     `json:"textInput"`
	URLInput    string     `json:"urlInput"`
	FileInput   string     `json:"fileInput"`
	Questions   []Question `json:"questions"`
}

// TabPatch carries a partial update. Nil pointers (and a nil Questions slice)
// mean "field absent".
type TabPatch struct {
	ID          string     `json:"id"`
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	TextInput   *string    `json:"textInput"`
	URLInput    *string    `json:"urlInput"`
	FileInput   *string    `json:"fileInput"`
	Questions   []Question `json:"questions"`
}

// HasBody reports whether the patch touches any payload field.
// When false the stored data blob is left untouched.
func (p *TabPatch) HasBody() bool {
	return p.Questions != nil || p.TextInput != nil || p.URLInput != nil || p.FileInput != nil
}

// BodyData builds the replacement payload from the provided fields only.
// Fields absent from the patch come out as zero values: the blob is replaced
// wholesale, not merged with the stored one. The product's save flow always
// resends the full body, which is what keeps this from losing data.
func (p *TabPatch) BodyData() TabData {
	var d TabData
	if p.Questions != nil {
		d.Questions = p.Questions
	}
	if p.TextInput != nil {
		d.TextInput = *p.TextInput
	}
	if p.URLInput != nil {
		d.URLInput = *p.URLInput
	}
	if p.FileInput != nil {
		d.FileInput = *p.FileInput
	}
	return d
}

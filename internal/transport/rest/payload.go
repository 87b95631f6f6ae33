package rest

import (
	"bytes"
	"encoding/json"

	"quiz-duel-client/internal/domain"
)

// The authority returns populated documents: references may arrive as a bare id
// or as an object carrying _id, and questions are nested under questionId.

type ref struct {
	ID   string
	Name string
}

func (r *ref) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &r.ID)
	}
	var obj struct {
		ID       string `json:"_id"`
		AltID    string `json:"id"`
		Name     string `json:"name"`
		Username string `json:"username"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	r.ID = firstNonEmpty(obj.ID, obj.AltID)
	r.Name = firstNonEmpty(obj.Username, obj.Name)
	return nil
}

type gamePayload struct {
	ID        string          `json:"_id"`
	AltID     string          `json:"id"`
	Topic     string          `json:"topic"`
	Category  string          `json:"category"`
	Status    string          `json:"status"`
	WinnerID  ref             `json:"winnerId"`
	Players   []playerPayload `json:"players"`
	Questions []questionEntry `json:"questions"`
}

type playerPayload struct {
	UserID       ref             `json:"userId"`
	Score        int             `json:"score"`
	Answers      []answerPayload `json:"answers"`
	RatingChange *int            `json:"ratingChange"`
	NewRating    *int            `json:"newRating"`
	Result       string          `json:"result"`
}

type answerPayload struct {
	QuestionID ref    `json:"questionId"`
	Answer     string `json:"answer"`
	TimeTaken  int    `json:"timeTaken"`
	IsCorrect  *bool  `json:"isCorrect"`
}

type questionPayload struct {
	ID          string          `json:"_id"`
	AltID       string          `json:"id"`
	Description string          `json:"description"`
	Options     []optionPayload `json:"options"`
	TimeLimit   int             `json:"timeLimit"`
}

// questionEntry accepts both {"questionId": {...}} and a flat question object.
type questionEntry struct {
	Question questionPayload
}

func (q *questionEntry) UnmarshalJSON(data []byte) error {
	var nested struct {
		QuestionID json.RawMessage `json:"questionId"`
	}
	if err := json.Unmarshal(data, &nested); err != nil {
		return err
	}
	raw := bytes.TrimSpace(nested.QuestionID)
	if len(raw) > 0 && raw[0] == '{' {
		return json.Unmarshal(raw, &q.Question)
	}
	if len(raw) > 0 && raw[0] == '"' {
		return json.Unmarshal(raw, &q.Question.ID)
	}
	return json.Unmarshal(data, &q.Question)
}

// optionPayload accepts {"text": ...} or a bare string.
type optionPayload struct {
	Text string
}

func (o *optionPayload) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &o.Text)
	}
	var obj struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	o.Text = obj.Text
	return nil
}

type dashboardPayload struct {
	Stats struct {
		Overall struct {
			Rating *int `json:"rating"`
		} `json:"overall"`
	} `json:"stats"`
}

func (g gamePayload) toDomain() domain.GameSession {
	out := domain.GameSession{
		ID:        firstNonEmpty(g.ID, g.AltID),
		Topic:     g.Topic,
		Category:  g.Category,
		Status:    domain.GameStatus(g.Status),
		Players:   make([]domain.PlayerState, 0, len(g.Players)),
		Questions: make([]domain.Question, 0, len(g.Questions)),
	}
	if g.WinnerID.ID != "" {
		w := g.WinnerID.ID
		out.WinnerID = &w
	}
	for _, p := range g.Players {
		ps := domain.PlayerState{
			UserID:       p.UserID.ID,
			Name:         p.UserID.Name,
			Score:        p.Score,
			RatingChange: p.RatingChange,
			NewRating:    p.NewRating,
			Result:       p.Result,
			Answers:      make([]domain.AnswerRecord, 0, len(p.Answers)),
		}
		for _, a := range p.Answers {
			ps.Answers = append(ps.Answers, domain.AnswerRecord{
				QuestionID: a.QuestionID.ID,
				Answer:     a.Answer,
				TimeTaken:  a.TimeTaken,
				IsCorrect:  a.IsCorrect,
			})
		}
		out.Players = append(out.Players, ps)
	}
	for _, entry := range g.Questions {
		q := entry.Question
		dq := domain.Question{
			ID:          firstNonEmpty(q.ID, q.AltID),
			Description: q.Description,
			TimeLimit:   q.TimeLimit,
			Options:     make([]domain.Option, 0, len(q.Options)),
		}
		for _, o := range q.Options {
			dq.Options = append(dq.Options, domain.Option{Text: o.Text})
		}
		out.Questions = append(out.Questions, dq)
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

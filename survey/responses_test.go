package survey

import (
	"context"
	"errors"
	"testing"

	"github.com/mbolis/quick-survey/model"
)

func TestListAndDeleteResponses(t *testing.T) {
	db, qs := seededDB(t)
	ctx := context.Background()

	alex, err := SaveResponse(ctx, db, qs, Values{
		Name:    "Alex",
		Email:   "alex@example.com",
		Role:    model.RoleGeneral,
		Answers: map[int]string{1: "student", 4: "Fewer passwords"},
	})
	if err != nil {
		t.Fatalf("save alex: %v", err)
	}
	sam, err := SaveResponse(ctx, db, qs, Values{
		Name:    "Sam",
		Role:    model.RoleGeneral,
		Answers: map[int]string{1: "founder", 5: "Huge", 7: "not_sure"},
	})
	if err != nil {
		t.Fatalf("save sam: %v", err)
	}

	all, err := ListResponses(ctx, db, ResponseFilter{}, true)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 || all[0].ID != sam || all[1].ID != alex {
		t.Fatalf("want newest first [%d %d], got %+v", sam, alex, all)
	}
	if len(all[0].Answers) != 3 || len(all[1].Answers) != 2 {
		t.Fatalf("answers not attached: %d/%d", len(all[0].Answers), len(all[1].Answers))
	}

	builders, err := ListResponses(ctx, db, ResponseFilter{Role: model.RoleBuilder}, false)
	if err != nil {
		t.Fatalf("list builders: %v", err)
	}
	if len(builders) != 1 || builders[0].ID != sam {
		t.Fatalf("builders: got %+v", builders)
	}

	found, err := ListResponses(ctx, db, ResponseFilter{Search: "example.com"}, false)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(found) != 1 || found[0].ID != alex {
		t.Fatalf("search: got %+v", found)
	}

	r, err := GetResponse(ctx, db, alex)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if r.Answers[0].Text != "Student" || r.Answers[1].Text != "Fewer passwords" {
		t.Fatalf("answers: %+v", r.Answers)
	}

	records, err := ListAnswers(ctx, db, AnswerFilter{QuestionID: 1})
	if err != nil {
		t.Fatalf("list answers: %v", err)
	}
	if len(records) != 2 || records[0].QuestionPrompt != "Which of these best describes you?" {
		t.Fatalf("answer records: %+v", records)
	}

	if err := DeleteResponse(ctx, db, sam); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := GetResponse(ctx, db, sam); !errors.Is(err, ErrResponseNotFound) {
		t.Fatalf("deleted response still found: %v", err)
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM survey_answer WHERE response_id = ?`, sam).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("answers not cascaded: %d left", n)
	}
	if err := DeleteResponse(ctx, db, sam); !errors.Is(err, ErrResponseNotFound) {
		t.Fatalf("delete twice: %v", err)
	}
}

package model

import "testing"

func TestQuizNormalizeIDs(t *testing.T) {
	q := Quiz{
		ID: "quiz-1",
		Questions: []Question{
			{ID: "", Prompt: "a"},
			{ID: "q-b", Prompt: "b"},
			{ID: "", Prompt: "c"},
		},
	}
	q.NormalizeIDs()

	want := []string{"0", "q-b", "2"}
	for i, id := range want {
		if q.Questions[i].ID != id {
			t.Errorf("Questions[%d].ID = %q, want %q", i, q.Questions[i].ID, id)
		}
	}
}

func TestQuizNormalizeIDsAvoidsCollisions(t *testing.T) {
	tests := []struct {
		name string
		ids  []string
		want []string
	}{
		{name: "explicit id equals a later index", ids: []string{"1", "", ""}, want: []string{"1", "1_1", "2"}},
		{name: "explicit id equals an earlier index", ids: []string{"", "0"}, want: []string{"0_1", "0"}},
		{name: "suffix already taken", ids: []string{"", "0", "0_1"}, want: []string{"0_2", "0", "0_1"}},
		{name: "duplicate explicit ids kept", ids: []string{"x", "x", ""}, want: []string{"x", "x", "2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := Quiz{ID: "quiz-1"}
			for _, id := range tt.ids {
				q.Questions = append(q.Questions, Question{ID: id})
			}
			q.NormalizeIDs()

			seen := map[string]bool{}
			for i, want := range tt.want {
				got := q.Questions[i].ID
				if got != want {
					t.Errorf("Questions[%d].ID = %q, want %q", i, got, want)
				}
				if tt.ids[i] == "" && seen[got] {
					t.Errorf("Questions[%d].ID = %q collides with an earlier id", i, got)
				}
				seen[got] = true
			}
		})
	}
}

func TestQuestionViewHidesAnswer(t *testing.T) {
	correct := 2
	q := Question{ID: "q1", Prompt: "2+2?", Options: []string{"3", "5", "4"}, CorrectOption: &correct, Points: 5}
	v := q.View()

	if v.ID != "q1" || v.Prompt != "2+2?" || v.Points != 5 || len(v.Options) != 3 {
		t.Fatalf("View() = %+v, fields not carried", v)
	}

	v.Options[0] = "changed"
	if q.Options[0] != "3" {
		t.Error("View() shares the options slice with the question")
	}
}

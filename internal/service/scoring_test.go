package service

import (
	"elearn_backend/internal/model"
	"reflect"
	"testing"
)

func choiceQuestion(id string, qt model.QuestionType, points int, correct, wrong []string) model.QuizQuestion {
	q := model.QuizQuestion{
		UUIDBase:     model.UUIDBase{ID: id},
		QuestionType: qt,
		Points:       points,
	}
	for _, oid := range correct {
		q.Options = append(q.Options, model.QuizQuestionOption{
			UUIDBase:  model.UUIDBase{ID: oid},
			IsCorrect: true,
		})
	}
	for _, oid := range wrong {
		q.Options = append(q.Options, model.QuizQuestionOption{
			UUIDBase: model.UUIDBase{ID: oid},
		})
	}
	return q
}

func textQuestion(id string, qt model.QuestionType, points int) model.QuizQuestion {
	return model.QuizQuestion{
		UUIDBase:     model.UUIDBase{ID: id},
		QuestionType: qt,
		Points:       points,
	}
}

func TestScoreQuizAllCorrect(t *testing.T) {
	questions := []model.QuizQuestion{
		choiceQuestion("q1", model.MultipleChoice, 5, []string{"a", "c"}, []string{"b"}),
		choiceQuestion("q2", model.TrueFalse, 5, []string{"t"}, []string{"f"}),
	}
	answers := map[string]AnswerValue{
		"q1": {OptionIDs: []string{"c", "a"}}, // 顺序无关
		"q2": {OptionIDs: []string{"t"}},
	}

	result := ScoreQuiz(questions, answers)
	if result.ScorePercent != 100 {
		t.Errorf("ScorePercent = %d, want 100", result.ScorePercent)
	}
	if result.PointsEarned != 10 || result.TotalPoints != 10 {
		t.Errorf("points = %d/%d, want 10/10", result.PointsEarned, result.TotalPoints)
	}
	if !result.Passed(70) {
		t.Error("expected pass at threshold 70")
	}
}

func TestScoreQuizNoAnswers(t *testing.T) {
	questions := []model.QuizQuestion{
		choiceQuestion("q1", model.MultipleChoice, 5, []string{"a"}, []string{"b"}),
		textQuestion("q2", model.ShortAnswer, 5),
	}

	result := ScoreQuiz(questions, map[string]AnswerValue{})
	if result.ScorePercent != 0 {
		t.Errorf("ScorePercent = %d, want 0", result.ScorePercent)
	}
	if result.Passed(60) {
		t.Error("empty attempt should not pass")
	}
	for _, qs := range result.PerQuestion {
		if qs.IsCorrect || qs.PointsEarned != 0 {
			t.Errorf("question %s: unanswered must score 0, got %+v", qs.QuestionID, qs)
		}
	}
}

func TestMultipleChoiceSetEquality(t *testing.T) {
	q := choiceQuestion("q1", model.MultipleChoice, 10, []string{"a", "c"}, []string{"b", "d"})

	tests := []struct {
		name    string
		picked  []string
		correct bool
	}{
		{"exact match", []string{"a", "c"}, true},
		{"order independent", []string{"c", "a"}, true},
		{"missing one", []string{"a"}, false},
		{"extra wrong pick", []string{"a", "c", "b"}, false},
		{"superset of correct", []string{"a", "b", "c"}, false},
		{"all options", []string{"a", "b", "c", "d"}, false},
		{"empty selection", nil, false},
		{"duplicate ids do not collapse", []string{"a", "a"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ScoreQuiz([]model.QuizQuestion{q}, map[string]AnswerValue{
				"q1": {OptionIDs: tt.picked},
			})
			got := result.PerQuestion[0].IsCorrect
			if got != tt.correct {
				t.Errorf("picked %v: IsCorrect = %v, want %v", tt.picked, got, tt.correct)
			}
		})
	}
}

func TestTrueFalseScoring(t *testing.T) {
	q := choiceQuestion("q1", model.TrueFalse, 4, []string{"t"}, []string{"f"})

	tests := []struct {
		name    string
		picked  []string
		correct bool
	}{
		{"correct option", []string{"t"}, true},
		{"wrong option", []string{"f"}, false},
		{"both options", []string{"t", "f"}, false},
		{"no selection", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ScoreQuiz([]model.QuizQuestion{q}, map[string]AnswerValue{
				"q1": {OptionIDs: tt.picked},
			})
			if got := result.PerQuestion[0].IsCorrect; got != tt.correct {
				t.Errorf("picked %v: IsCorrect = %v, want %v", tt.picked, got, tt.correct)
			}
		})
	}
}

func TestFreeTextParticipationCredit(t *testing.T) {
	tests := []struct {
		name    string
		qt      model.QuestionType
		text    string
		correct bool
	}{
		{"short answer with content", model.ShortAnswer, "O(n log n)", true},
		{"essay with content", model.Essay, "因为归并排序每层合并代价为线性", true},
		{"empty text", model.ShortAnswer, "", false},
		{"whitespace only", model.ShortAnswer, "   \t\n ", false},
		{"essay whitespace only", model.Essay, "  ", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := textQuestion("q1", tt.qt, 5)
			result := ScoreQuiz([]model.QuizQuestion{q}, map[string]AnswerValue{
				"q1": {Text: tt.text},
			})
			if got := result.PerQuestion[0].IsCorrect; got != tt.correct {
				t.Errorf("text %q: IsCorrect = %v, want %v", tt.text, got, tt.correct)
			}
		})
	}
}

func TestScorePercentRounding(t *testing.T) {
	questions := []model.QuizQuestion{
		choiceQuestion("q1", model.TrueFalse, 1, []string{"t1"}, nil),
		choiceQuestion("q2", model.TrueFalse, 1, []string{"t2"}, nil),
		choiceQuestion("q3", model.TrueFalse, 1, []string{"t3"}, nil),
	}

	// 1/3 = 33.33 -> 33
	result := ScoreQuiz(questions, map[string]AnswerValue{
		"q1": {OptionIDs: []string{"t1"}},
	})
	if result.ScorePercent != 33 {
		t.Errorf("1/3 ScorePercent = %d, want 33", result.ScorePercent)
	}

	// 2/3 = 66.67 -> 67
	result = ScoreQuiz(questions, map[string]AnswerValue{
		"q1": {OptionIDs: []string{"t1"}},
		"q2": {OptionIDs: []string{"t2"}},
	})
	if result.ScorePercent != 67 {
		t.Errorf("2/3 ScorePercent = %d, want 67", result.ScorePercent)
	}
}

func TestPassedThresholdInclusive(t *testing.T) {
	r := ScoreResult{ScorePercent: 70}
	if !r.Passed(70) {
		t.Error("score equal to passing score must pass")
	}
	if (ScoreResult{ScorePercent: 69}).Passed(70) {
		t.Error("score below passing score must not pass")
	}
	if !(ScoreResult{ScorePercent: 0}).Passed(0) {
		t.Error("zero threshold passes everything")
	}
}

func TestScoreQuizDeterministic(t *testing.T) {
	questions := []model.QuizQuestion{
		choiceQuestion("q1", model.MultipleChoice, 3, []string{"a", "b"}, []string{"c"}),
		textQuestion("q2", model.Essay, 7),
	}
	answers := map[string]AnswerValue{
		"q1": {OptionIDs: []string{"b", "a"}},
		"q2": {Text: "answer"},
	}

	first := ScoreQuiz(questions, answers)
	second := ScoreQuiz(questions, answers)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated scoring diverged:\nfirst  %+v\nsecond %+v", first, second)
	}
}

func TestScoreQuizZeroTotalPoints(t *testing.T) {
	result := ScoreQuiz(nil, nil)
	if result.ScorePercent != 0 || result.TotalPoints != 0 {
		t.Errorf("empty quiz: got %+v, want zero result", result)
	}
}

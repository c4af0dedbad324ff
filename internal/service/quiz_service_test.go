package service

import (
	"elearn_backend/internal/model"
	"testing"
)

func TestValidateQuestion(t *testing.T) {
	tests := []struct {
		name    string
		req     QuizQuestionReq
		wantErr bool
	}{
		{
			name: "valid multiple choice",
			req: QuizQuestionReq{
				QuestionType: "multiple_choice", Content: "选出所有偶数", Points: 5,
				Options: []QuizOptionReq{{Text: "2", IsCorrect: true}, {Text: "3"}},
			},
		},
		{
			name: "multiple choice without correct option",
			req: QuizQuestionReq{
				QuestionType: "multiple_choice", Content: "x", Points: 5,
				Options: []QuizOptionReq{{Text: "a"}, {Text: "b"}},
			},
			wantErr: true,
		},
		{
			name: "true_false with two correct options",
			req: QuizQuestionReq{
				QuestionType: "true_false", Content: "x", Points: 2,
				Options: []QuizOptionReq{{Text: "对", IsCorrect: true}, {Text: "错", IsCorrect: true}},
			},
			wantErr: true,
		},
		{
			name: "valid true_false",
			req: QuizQuestionReq{
				QuestionType: "true_false", Content: "x", Points: 2,
				Options: []QuizOptionReq{{Text: "对", IsCorrect: true}, {Text: "错"}},
			},
		},
		{
			name: "essay with options",
			req: QuizQuestionReq{
				QuestionType: "essay", Content: "x", Points: 10,
				Options: []QuizOptionReq{{Text: "a"}},
			},
			wantErr: true,
		},
		{
			name: "valid short answer",
			req:  QuizQuestionReq{QuestionType: "short_answer", Content: "x", Points: 3},
		},
		{
			name:    "unknown type",
			req:     QuizQuestionReq{QuestionType: "matching", Content: "x", Points: 3},
			wantErr: true,
		},
		{
			name: "non-positive points",
			req: QuizQuestionReq{
				QuestionType: "true_false", Content: "x", Points: 0,
				Options: []QuizOptionReq{{Text: "对", IsCorrect: true}},
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateQuestion(&tt.req)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateQuestion() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestToStudentQuestionsHidesAnswers(t *testing.T) {
	qs := []model.QuizQuestion{
		choiceQuestion("q1", model.MultipleChoice, 5, []string{"a"}, []string{"b"}),
		textQuestion("q2", model.Essay, 10),
	}
	qs[0].Content = "题干"
	qs[0].Explanation = "解析不应出现在作答视图"

	out := ToStudentQuestions(qs)
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	if out[0].Content != "题干" || out[0].Points != 5 {
		t.Errorf("question fields not carried over: %+v", out[0])
	}
	if len(out[0].Options) != 2 {
		t.Errorf("len(options) = %d, want 2", len(out[0].Options))
	}
	if out[1].Options != nil {
		t.Errorf("essay should have no options, got %v", out[1].Options)
	}
}

package service

import (
	"elearn_backend/internal/model"
	"math"
	"strings"
)

// AnswerValue 一道题的作答内容。选择题用选项ID，主观题用文本。
type AnswerValue struct {
	OptionIDs []string `json:"optionIds,omitempty"`
	Text      string   `json:"text,omitempty"`
}

type QuestionScore struct {
	QuestionID   string `json:"questionId"`
	IsCorrect    bool   `json:"isCorrect"`
	Points       int    `json:"points"`
	PointsEarned int    `json:"pointsEarned"`
}

type ScoreResult struct {
	ScorePercent int             `json:"scorePercent"`
	PointsEarned int             `json:"pointsEarned"`
	TotalPoints  int             `json:"totalPoints"`
	PerQuestion  []QuestionScore `json:"perQuestion"`
}

// ScoreQuiz 对整份作答评分。纯函数：相同输入必得相同输出，不做任何IO。
// 未作答的题目记0分并标记错误。
func ScoreQuiz(questions []model.QuizQuestion, answers map[string]AnswerValue) ScoreResult {
	result := ScoreResult{
		PerQuestion: make([]QuestionScore, 0, len(questions)),
	}

	for i := range questions {
		q := &questions[i]
		result.TotalPoints += q.Points

		qs := QuestionScore{QuestionID: q.ID, Points: q.Points}
		if ans, ok := answers[q.ID]; ok {
			qs.IsCorrect = isCorrect(q, ans)
		}
		if qs.IsCorrect {
			qs.PointsEarned = q.Points
			result.PointsEarned += q.Points
		}
		result.PerQuestion = append(result.PerQuestion, qs)
	}

	if result.TotalPoints > 0 {
		result.ScorePercent = int(math.Round(float64(result.PointsEarned) / float64(result.TotalPoints) * 100))
	}
	return result
}

// Passed 及格判定，阈值为闭区间（>=）
func (r ScoreResult) Passed(passingScore int) bool {
	return r.ScorePercent >= passingScore
}

func isCorrect(q *model.QuizQuestion, ans AnswerValue) bool {
	switch q.QuestionType {
	case model.MultipleChoice:
		// 选中集合与正确集合完全一致才算对，多选漏选均不得分
		return sameIDSet(ans.OptionIDs, q.CorrectOptionIDs())
	case model.TrueFalse:
		correct := q.CorrectOptionIDs()
		return len(ans.OptionIDs) == 1 && len(correct) == 1 && ans.OptionIDs[0] == correct[0]
	case model.ShortAnswer, model.Essay:
		// 主观题不对答案内容做比对，非空即得分。
		// 这是沿用的参与即得分策略，不是缺陷，后续人工评分可覆盖。
		return strings.TrimSpace(ans.Text) != ""
	}
	return false
}

func sameIDSet(a, b []string) bool {
	if len(a) == 0 || len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, id := range a {
		set[id] = true
	}
	if len(set) != len(b) {
		return false
	}
	for _, id := range b {
		if !set[id] {
			return false
		}
	}
	return true
}

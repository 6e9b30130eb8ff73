package synthesizer

import (
	"github.com/shouni/go-paper-manga/pkg/domain"
	"github.com/shouni/go-paper-manga/pkg/theme"
)

// fallbackStoryboard は、パースが全滅したときに使う固定3パネルの
// プレースホルダー台本です。IsFallback フラグ付きで、キャッシュされません。
func (s *Synthesizer) fallbackStoryboard(req Request, th theme.Theme) *domain.Storyboard {
	teacher := pickByRole(th, "teacher")
	student := pickByRole(th, "student")

	panels := domain.Panels{
		{
			Number:            1,
			Type:              domain.PanelTitle,
			VisualDescription: "The teacher holding a book, the student looking curious",
			Characters:        []string{teacher, student},
			CharacterEmotions: map[string]string{teacher: "explaining", student: "confused"},
			Dialogue: map[string]string{
				teacher: "Let's learn something interesting today!",
				student: "Huh...?",
			},
			Background: "simple study room",
		},
		{
			Number:            2,
			Type:              domain.PanelExplanation,
			VisualDescription: "The teacher at a whiteboard, the student listening",
			Characters:        []string{teacher, student},
			CharacterEmotions: map[string]string{teacher: "explaining", student: "thinking"},
			Dialogue: map[string]string{
				teacher: "Let me walk you through it.",
				student: "Hmm...",
			},
			Background: "classroom",
		},
		{
			Number:            3,
			Type:              domain.PanelConclusion,
			VisualDescription: "Everyone celebrating together",
			Characters:        []string{teacher, student},
			CharacterEmotions: map[string]string{teacher: "happy", student: "happy"},
			Dialogue: map[string]string{
				teacher: "Well done!",
				student: "Now I get it!",
			},
			Background: "festive background with sparkles",
		},
	}

	return &domain.Storyboard{
		Title:          orDefault(req.Title, "Study Notes"),
		Summary:        "Let's learn together!",
		CharacterTheme: th.Name,
		Language:       req.Language,
		Panels:         panels,
		IsFallback:     true,
	}
}

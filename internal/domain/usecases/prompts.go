package usecases

import (
	"fmt"
	"strings"

	"github.com/0xcro3dile/incidentrag-go/internal/domain/entities"
)

const (
	// NotFoundMessage is returned when the knowledge base has nothing similar.
	NotFoundMessage = "Извините, решение не найдено в базе знаний."

	// NoSolutionMarker is the phrase the model writes when a transcript never reached a solution.
	NoSolutionMarker = "решение не обсуждалось"

	markdownInstruction = "Оформи ответ с использованием Markdown: используй списки, заголовки (###), " +
		"выделения (**жирный текст**) и переносы строк."
)

// combineSolutions enumerates solutions with 1-based labels.
func combineSolutions(solutions []string) string {
	parts := make([]string, len(solutions))
	for i, sol := range solutions {
		parts[i] = fmt.Sprintf("💡 Решение %d:\n%s", i+1, sol)
	}
	return strings.Join(parts, "\n\n")
}

// SolutionContext is the system message for a prompt-only question.
func SolutionContext(solutions []string) string {
	var sb strings.Builder
	sb.WriteString("Вот похожие инциденты из базы знаний и предложенные решения:\n\n")
	sb.WriteString(combineSolutions(solutions))
	sb.WriteString("\n\n")
	sb.WriteString("Теперь, исходя из этого, ответь на следующий вопрос пользователя:\n")
	sb.WriteString(markdownInstruction)
	return sb.String()
}

// FallbackContext is the system message used to regenerate a missing solution.
func FallbackContext(solutions []string) string {
	var sb strings.Builder
	sb.WriteString("Похожие инциденты и предложенные решения:\n\n")
	sb.WriteString(combineSolutions(solutions))
	sb.WriteString("\n\n")
	sb.WriteString("Предложи на основе этого подходящее решение:")
	return sb.String()
}

// ExtractionPrompt is the system instruction for turning an incident transcript into
// a structured report. The glossary is listed so the model reuses canonical terms.
func ExtractionPrompt(glossary entities.Glossary) string {
	var sb strings.Builder
	sb.WriteString("Ты помощник дежурной смены. Тебе передают текст обсуждения инцидента, ")
	sb.WriteString("по которому нужно составить структурированный отчёт.\n\n")

	if len(glossary) > 0 {
		sb.WriteString("Словарь терминов предметной области. Если в тексте встречается термин ")
		sb.WriteString("из левой части, в отчёте используй его каноническую форму из правой части:\n")
		for _, entry := range glossary {
			fmt.Fprintf(&sb, "- %s → %s\n", entry.Term, entry.Normalized)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Верни ответ строго в виде одного JSON-объекта, без пояснений и без Markdown, ")
	sb.WriteString("со следующими строковыми полями:\n")
	fmt.Fprintf(&sb, "- %q: краткое описание инцидента;\n", entities.FieldIncidentSummary)
	fmt.Fprintf(&sb, "- %q: первопричина;\n", entities.FieldRootCause)
	fmt.Fprintf(&sb, "- %q: влияние на сервисы и пользователей;\n", entities.FieldImpact)
	fmt.Fprintf(&sb, "- %q: хронология ключевых событий;\n", entities.FieldTimeline)
	fmt.Fprintf(&sb, "- %q: участники обсуждения;\n", entities.FieldParticipants)
	fmt.Fprintf(&sb, "- %q: предложенное или применённое решение.\n", entities.FieldSolution)
	fmt.Fprintf(&sb, "Если решение в тексте не обсуждалось, запиши в поле %q фразу %q.",
		entities.FieldSolution, NoSolutionMarker)
	return sb.String()
}

// needsFallback reports whether the report lacks a usable solution.
func needsFallback(report entities.Report) bool {
	solution := strings.TrimSpace(report.Get(entities.FieldSolution))
	return solution == "" || strings.Contains(strings.ToLower(solution), NoSolutionMarker)
}

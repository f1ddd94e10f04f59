package gemini

import "golang.org/x/text/language"

// defaultPrompt is the language-agnostic fallback used when no table entry
// matches (spec.md §4.G).
const defaultPrompt = "Please continue exactly where you left off, without repeating any previous content."

// builtinPrompts holds the non-configurable rows of the retry-prompt
// table (spec.md §4.G: "a configurable default exists for English and
// Chinese; the rest are built-in").
var builtinPrompts = map[language.Tag]string{
	language.Japanese: "中断された箇所から、これまでの内容を繰り返さずに続けてください。",
	language.Korean:   "이전 내용을 반복하지 말고 중단된 부분부터 계속해 주세요.",
	language.Arabic:   "يرجى المتابعة من حيث توقفت تمامًا، دون تكرار أي محتوى سابق.",
	language.Russian:  "Пожалуйста, продолжите точно с того места, где остановились, не повторяя предыдущий текст.",
	language.French:   "Veuillez continuer exactement là où vous vous êtes arrêté, sans répéter le contenu précédent.",
	language.German:   "Bitte fahre genau dort fort, wo du aufgehört hast, ohne vorherige Inhalte zu wiederholen.",
	language.Spanish:  "Por favor, continúa exactamente donde lo dejaste, sin repetir contenido anterior.",
}

// RetryPrompts is the fully-resolved retry-prompt table, built once at
// startup into an immutable map — there is no package-global mutable
// table here, resolving spec.md §9's "global mutable config" note the way
// SPEC_FULL.md's AMBIENT STACK section specifies.
type RetryPrompts struct {
	prompts map[language.Tag]string
}

// NewRetryPrompts builds the table from the built-ins plus the
// GEMINI_RETRY_PROMPT_EN / GEMINI_RETRY_PROMPT_CN overrides (empty strings
// leave the built-in English/Chinese defaults in place).
func NewRetryPrompts(englishOverride, chineseOverride string) *RetryPrompts {
	prompts := make(map[language.Tag]string, len(builtinPrompts)+2)
	for tag, prompt := range builtinPrompts {
		prompts[tag] = prompt
	}

	prompts[language.English] = defaultPrompt
	if englishOverride != "" {
		prompts[language.English] = englishOverride
	}

	prompts[language.Chinese] = "请从你刚才中断的地方继续，不要重复之前的内容。"
	if chineseOverride != "" {
		prompts[language.Chinese] = chineseOverride
	}

	return &RetryPrompts{prompts: prompts}
}

// For returns the prompt for tag, falling back to the language-agnostic
// default if tag has no entry.
func (r *RetryPrompts) For(tag language.Tag) string {
	if p, ok := r.prompts[tag]; ok {
		return p
	}
	return defaultPrompt
}

package summary

import "math"

type prompt struct {
	name   string
	system string
	user   string
}

var prompts = map[string]prompt{
	"pt": {
		name:   "Português",
		system: "Você é um assistente útil que cria resumos concisos e informativos de capítulos de livros. Foque nos pontos principais, conceitos-chave e detalhes importantes. Mantenha os resumos entre 2-4 parágrafos. Responda sempre em português brasileiro.",
		user:   "Por favor, forneça um resumo do seguinte conteúdo de capítulo:\n\n",
	},
	"en": {
		name:   "English",
		system: "You are a helpful assistant that creates concise, informative summaries of book chapters. Focus on the main points, key concepts, and important details. Keep summaries between 2-4 paragraphs.",
		user:   "Please provide a summary of the following chapter content:\n\n",
	},
	"es": {
		name:   "Español",
		system: "Eres un asistente útil que crea resúmenes concisos e informativos de capítulos de libros. Enfócate en los puntos principales, conceptos clave y detalles importantes. Mantén los resúmenes entre 2-4 párrafos.",
		user:   "Por favor, proporciona un resumen del siguiente contenido de capítulo:\n\n",
	},
}

// Prompts returns the system and user messages for language. Unknown
// languages use Portuguese.
func Prompts(language, text string) (system, user string) {
	p, ok := prompts[language]
	if !ok {
		p = prompts[DefaultLanguage]
	}
	return p.system, p.user + text
}

// Languages maps supported language codes to their names.
func Languages() map[string]string {
	out := make(map[string]string, len(prompts))
	for code, p := range prompts {
		out[code] = p.name
	}
	return out
}

// Pricing used by EstimateCost, in USD per 1K tokens.
const (
	charsPerToken   = 4
	inputCostPer1K  = 0.0015
	outputCostPer1K = 0.002
	usdToBRL        = 5.5
	costRoundingUSD = 1e6
	costRoundingBRL = 1e4
)

// Cost is a rough price estimate for one summary.
type Cost struct {
	InputTokens  int     `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens int     `json:"output_tokens" yaml:"output_tokens"`
	TotalTokens  int     `json:"total_tokens" yaml:"total_tokens"`
	USD          float64 `json:"estimated_cost_usd" yaml:"estimated_cost_usd"`
	BRL          float64 `json:"estimated_cost_brl" yaml:"estimated_cost_brl"`
}

// EstimateCost prices a summary of text at four characters per token and a
// full MaxTokens answer.
func EstimateCost(text string) Cost {
	input := float64(len([]rune(text))) / charsPerToken
	total := input/1000*inputCostPer1K + float64(MaxTokens)/1000*outputCostPer1K
	return Cost{
		InputTokens:  int(input),
		OutputTokens: MaxTokens,
		TotalTokens:  int(input + MaxTokens),
		USD:          math.Round(total*costRoundingUSD) / costRoundingUSD,
		BRL:          math.Round(total*usdToBRL*costRoundingBRL) / costRoundingBRL,
	}
}

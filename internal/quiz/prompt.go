package quiz

import (
	"fmt"
	"strings"
)

// difficultyPriority is the order in which leftover questions are assigned
// when the requested count does not divide evenly across difficulties.
var difficultyPriority = []string{DifficultyHard, DifficultyMedium, DifficultyEasy}

// AllocateDifficulties splits count questions across the requested
// difficulties. Each difficulty gets an equal base share; the remainder is
// assigned one question at a time in priority order (hard first).
func AllocateDifficulties(count int, difficulties []string) map[string]int {
	requested := make(map[string]bool, len(difficulties))
	for _, d := range difficulties {
		requested[d] = true
	}

	ordered := make([]string, 0, len(requested))
	for _, d := range difficultyPriority {
		if requested[d] {
			ordered = append(ordered, d)
		}
	}
	if len(ordered) == 0 {
		return map[string]int{}
	}

	alloc := make(map[string]int, len(ordered))
	base := count / len(ordered)
	rest := count % len(ordered)
	for i, d := range ordered {
		alloc[d] = base
		if i < rest {
			alloc[d]++
		}
	}
	return alloc
}

const generationSystemPrompt = `Você é um gerador de questões de múltipla escolha para estudantes brasileiros. Responda somente com um array JSON válido, sem nenhum texto fora do array.`

// GenerationPrompt builds the system and user prompts for the generation
// call. referenceInfo carries extra catalog detail (known editions, subjects)
// when the request names a reference exam; it may be empty.
func GenerationPrompt(req Request, referenceInfo string) (system, user string) {
	var b strings.Builder

	fmt.Fprintf(&b, "Gere exatamente %d perguntas de múltipla escolha para alunos do nível escolar %q.\n", req.QuestionCount, req.SchoolLevel)
	if req.Objective != "" {
		fmt.Fprintf(&b, "Objetivo do quiz: %s.\n", req.Objective)
	}
	fmt.Fprintf(&b, "Distribua as perguntas de forma equilibrada entre os temas: %s.\n", strings.Join(req.Topics, ", "))

	b.WriteString("Distribuição por dificuldade (siga exatamente; perguntas extras já foram atribuídas na ordem Difícil, Médio, Fácil):\n")
	alloc := AllocateDifficulties(req.QuestionCount, req.Difficulties)
	for _, d := range difficultyPriority {
		if n, ok := alloc[d]; ok {
			fmt.Fprintf(&b, "- %s: %d pergunta(s)\n", d, n)
		}
	}

	if req.Reference != "" {
		fmt.Fprintf(&b, "Baseie as perguntas em provas reais de %s e cite o ano ou a edição no campo \"referencia\" (por exemplo: %q).\n", req.Reference, req.Reference+" 2022")
		if referenceInfo != "" {
			fmt.Fprintf(&b, "Informações sobre a prova: %s\n", referenceInfo)
		}
	} else {
		b.WriteString("As perguntas devem ser totalmente originais. Deixe o campo \"referencia\" como string vazia.\n")
	}

	b.WriteString(`
Cada pergunta deve ter exatamente 4 alternativas e uma única resposta correta.
Use exatamente os literais de dificuldade: "Fácil", "Médio" ou "Difícil".
O campo "respostaCorreta" deve conter apenas a letra maiúscula A, B, C ou D.
O campo "justificativa" deve explicar por que a resposta correta está certa.

Responda somente com um array JSON neste formato:
[
  {
    "tema": "...",
    "dificuldade": "Fácil",
    "perguntaTexto": "...",
    "alternativaA": "...",
    "alternativaB": "...",
    "alternativaC": "...",
    "alternativaD": "...",
    "respostaCorreta": "A",
    "justificativa": "...",
    "referencia": ""
  }
]
`)

	return generationSystemPrompt, b.String()
}

const reviewSystemPrompt = `Você é um revisor técnico de questões de múltipla escolha. Responda somente com um array JSON válido, sem nenhum texto fora do array.`

// ReviewPrompt builds the system and user prompts for the advisory review
// pass over already-generated questions. questionsJSON is the serialized
// question array; findings correlate to questions by array position.
func ReviewPrompt(req Request, questionsJSON string) (system, user string) {
	var b strings.Builder

	fmt.Fprintf(&b, "Avalie as perguntas de um quiz para alunos do nível escolar %q sobre os temas: %s.\n\n", req.SchoolLevel, strings.Join(req.Topics, ", "))
	b.WriteString("Para cada pergunta, verifique:\n")
	b.WriteString("1. Todos os campos estão preenchidos e coerentes.\n")
	b.WriteString("2. A alternativa indicada em \"respostaCorreta\" é de fato a correta.\n")
	b.WriteString("3. Não há ambiguidade nem mais de uma alternativa correta.\n")
	b.WriteString("4. A pergunta é adequada ao tema, ao nível escolar e à dificuldade declarada.\n")
	b.WriteString("5. Não há erros de português.\n\n")
	b.WriteString("Perguntas:\n")
	b.WriteString(questionsJSON)
	b.WriteString(`

Responda somente com um array JSON, uma entrada por pergunta, na mesma ordem:
[
  {
    "index": 0,
    "valid": true,
    "issues": [],
    "correctAnswerVerified": true,
    "justification": "",
    "suggestedCorrections": {},
    "suggestedDifficulty": ""
  }
]
`)

	return reviewSystemPrompt, b.String()
}

package calendar

import (
	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/br"
)

// National public holidays. Consciência Negra is national since lei
// 14.759/2023, first observed in 2024.
var brazilPublic = []*cal.Holiday{
	br.AnoNovo,
	br.SextaFeiraSanta,
	br.Tiradentes,
	br.Trabalhador,
	br.Independencia,
	br.NossaSenhoraAparecida,
	br.Finados,
	br.Republica,
	br.ConscienciaNegra.Clone(&cal.Holiday{StartYear: 2024}),
	br.Natal,
}

// Optional points (ponto facultativo) that many offices close on.
var brazilOptional = map[string][]*cal.Holiday{
	"carnaval": {
		carnavalMonday(),
		br.Carnaval.Clone(&cal.Holiday{Name: "Carnaval (terça-feira)"}),
	},
	"corpus_christi": {br.CorpusChristi},
}

func carnavalMonday() *cal.Holiday {
	h := br.Carnaval.Clone(&cal.Holiday{Name: "Carnaval (segunda-feira)"})
	h.Offset = -48
	return h
}

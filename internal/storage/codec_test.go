package storage

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"provisioner/internal/tarefa"
)

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func TestEncodePeriodKeysAndOrder(t *testing.T) {
	doc, err := EncodePeriod(sampleRecords(t)[:1])
	require.NoError(t, err)
	want := `[
    {
        "ID Tarefa": "7",
        "Título Tarefa": "Newsletter",
        "Subtarefa": "1",
        "Título Subtarefa": "Texto_Newsletter",
        "Tipo Subtarefa": "Texto",
        "Descrição": "edição de outubro",
        "Data Cadastro": "2025-10-01",
        "Data Entrega": "2025-10-15",
        "Status": "Pending"
    }
]`
	assert.Equal(t, want, string(doc))
}

func TestEncodeEmptyPeriod(t *testing.T) {
	doc, err := EncodePeriod(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(doc))

	recs, err := DecodePeriod(doc)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestDecodeForeignDocument(t *testing.T) {
	// Numeric ids and a missing status are accepted.
	doc := `[
	  {"ID Tarefa": 12, "Título Tarefa": "Promo", "Subtarefa": "2", "Título Subtarefa": "Layout_Promo",
	   "Tipo Subtarefa": "Layout", "Descrição": "", "Data Cadastro": "2025-09-30", "Data Entrega": "2025-10-02"}
	]`
	recs, err := DecodePeriod([]byte(doc))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	r := recs[0]
	assert.Equal(t, tarefa.TaskID("12"), r.TaskID)
	assert.Equal(t, tarefa.KindLayout, r.Kind)
	assert.Equal(t, time.Date(2025, 10, 2, 0, 0, 0, 0, time.UTC), r.DeliveryDate)
	assert.Equal(t, tarefa.Status(""), r.Status)
}

func TestDecodeRejectsInvalidDocuments(t *testing.T) {
	cases := map[string]string{
		"not json":      `[{`,
		"object":        `{"ID Tarefa": "1"}`,
		"unknown kind":  `[{"ID Tarefa": "1", "Tipo Subtarefa": "Video", "Data Entrega": "2025-10-02"}]`,
		"missing date":  `[{"ID Tarefa": "1", "Tipo Subtarefa": "HTML"}]`,
		"bad date":      `[{"ID Tarefa": "1", "Tipo Subtarefa": "HTML", "Data Entrega": "02/10/2025"}]`,
		"bad date item": `[{"ID Tarefa": "1", "Tipo Subtarefa": "HTML", "Data Entrega": "2025-13-45"}]`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodePeriod([]byte(doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidDocument)
		})
	}
}

func TestBlobVersionMatchesGit(t *testing.T) {
	// git hash-object of an empty file
	assert.Equal(t, Version("e69de29bb2d1d6434b8b29ae775ad8c2e48c5391"), BlobVersion(nil))
}

func TestPeriodFileName(t *testing.T) {
	p := tarefa.Period{Year: 2025, Month: time.March}
	assert.Equal(t, "tarefas_2025_03.json", PeriodFileName(p))

	got, ok := ParsePeriodFileName("acme", "tarefas_2025_03.json")
	require.True(t, ok)
	assert.Equal(t, tarefa.Period{Project: "acme", Year: 2025, Month: time.March}, got)

	for _, bad := range []string{"tarefas_2025_13.json", "tarefas_25_01.json", "tasks_2025_01.json", "tarefas_2025_01.yaml"} {
		_, ok := ParsePeriodFileName("", bad)
		assert.False(t, ok, bad)
	}
	assert.True(t, strings.HasPrefix(PeriodFileName(p), "tarefas_"))
}

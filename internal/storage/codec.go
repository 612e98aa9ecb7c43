package storage

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"provisioner/internal/tarefa"
)

// Stored document keys. The documents are shared with existing tooling, so the
// key names are fixed.
const (
	keyTaskID       = "ID Tarefa"
	keyTaskTitle    = "Título Tarefa"
	keySubtask      = "Subtarefa"
	keySubtaskTitle = "Título Subtarefa"
	keyKind         = "Tipo Subtarefa"
	keyDescription  = "Descrição"
	keyRegisteredOn = "Data Cadastro"
	keyDeliveryDate = "Data Entrega"
	keyStatus       = "Status"
)

const periodSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["ID Tarefa", "Tipo Subtarefa", "Data Entrega"],
    "properties": {
      "ID Tarefa": {"type": ["string", "integer"]},
      "Título Tarefa": {"type": "string"},
      "Subtarefa": {"type": ["string", "integer"]},
      "Título Subtarefa": {"type": "string"},
      "Tipo Subtarefa": {"enum": ["Texto", "Layout", "HTML"]},
      "Descrição": {"type": "string"},
      "Data Cadastro": {"type": "string", "pattern": "^([0-9]{4}-[0-9]{2}-[0-9]{2})?$"},
      "Data Entrega": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"},
      "Status": {"type": "string"}
    }
  }
}`

var periodValidator = jsonschema.MustCompileString("period.schema.json", periodSchema)

// EncodePeriod renders records as a stored period document (4-space indent,
// record order preserved, non-ASCII kept as is).
func EncodePeriod(recs []tarefa.Record) ([]byte, error) {
	arr := []byte("[]")
	for _, r := range recs {
		obj, err := encodeRecord(r)
		if err != nil {
			return nil, err
		}
		arr, err = sjson.SetRawBytes(arr, "-1", obj)
		if err != nil {
			return nil, err
		}
	}
	var out bytes.Buffer
	if err := json.Indent(&out, arr, "", "    "); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func encodeRecord(r tarefa.Record) ([]byte, error) {
	fields := []struct {
		key string
		val string
	}{
		{keyTaskID, string(r.TaskID)},
		{keyTaskTitle, r.TaskTitle},
		{keySubtask, strconv.Itoa(r.Kind.Precedence())},
		{keySubtaskTitle, r.SubtaskTitle()},
		{keyKind, r.Kind.String()},
		{keyDescription, r.Description},
		{keyRegisteredOn, tarefa.FormatDate(r.RegisteredOn)},
		{keyDeliveryDate, tarefa.FormatDate(r.DeliveryDate)},
	}
	if r.Status != "" {
		fields = append(fields, struct {
			key string
			val string
		}{keyStatus, string(r.Status)})
	}
	obj := []byte("{}")
	var err error
	for _, f := range fields {
		// Keys are literal; escape path metacharacters.
		obj, err = sjson.SetBytes(obj, escapePath(f.key), f.val)
		if err != nil {
			return nil, err
		}
	}
	return obj, nil
}

func escapePath(k string) string {
	var b strings.Builder
	for _, c := range k {
		switch c {
		case '.', '*', '?', '|', '#', '@', '!', ':', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}

// DecodePeriod parses a stored period document. Empty input yields no records.
func DecodePeriod(doc []byte) ([]tarefa.Record, error) {
	if len(bytes.TrimSpace(doc)) == 0 {
		return nil, nil
	}
	if err := ValidateDocument(doc); err != nil {
		return nil, err
	}
	var (
		out     []tarefa.Record
		decErr  error
		records = gjson.ParseBytes(doc).Array()
	)
	for i, item := range records {
		r, err := decodeRecord(item)
		if err != nil {
			decErr = fmt.Errorf("%w: record %d: %v", ErrInvalidDocument, i, err)
			break
		}
		out = append(out, r)
	}
	if decErr != nil {
		return nil, decErr
	}
	return out, nil
}

func decodeRecord(item gjson.Result) (tarefa.Record, error) {
	var (
		r   tarefa.Record
		err error
	)
	item.ForEach(func(key, value gjson.Result) bool {
		switch key.String() {
		case keyTaskID:
			r.TaskID = tarefa.TaskID(strings.TrimSpace(value.String()))
		case keyTaskTitle:
			r.TaskTitle = value.String()
		case keyKind:
			r.Kind, err = tarefa.ParseKind(value.String())
		case keyDescription:
			r.Description = value.String()
		case keyRegisteredOn:
			if value.String() != "" {
				r.RegisteredOn, err = tarefa.ParseDate(value.String())
			}
		case keyDeliveryDate:
			r.DeliveryDate, err = tarefa.ParseDate(value.String())
		case keyStatus:
			r.Status, err = tarefa.ParseStatus(value.String())
		}
		return err == nil
	})
	return r, err
}

// ValidateDocument checks doc against the period document schema.
func ValidateDocument(doc []byte) error {
	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := periodValidator.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return nil
}

// BlobVersion computes the git blob SHA-1 of doc, which is also what the
// GitHub Contents API reports as the file sha.
func BlobVersion(doc []byte) Version {
	h := sha1.New()
	fmt.Fprintf(h, "blob %d\x00", len(doc))
	h.Write(doc)
	return Version(hex.EncodeToString(h.Sum(nil)))
}

// PeriodFileName returns "tarefas_YYYY_MM.json".
func PeriodFileName(p tarefa.Period) string {
	return fmt.Sprintf("tarefas_%04d_%02d.json", p.Year, int(p.Month))
}

// ParsePeriodFileName is the inverse of PeriodFileName.
func ParsePeriodFileName(project, name string) (tarefa.Period, bool) {
	var y, m int
	if !strings.HasPrefix(name, "tarefas_") || !strings.HasSuffix(name, ".json") {
		return tarefa.Period{}, false
	}
	core := strings.TrimSuffix(strings.TrimPrefix(name, "tarefas_"), ".json")
	ys, ms, ok := strings.Cut(core, "_")
	if !ok || len(ys) != 4 {
		return tarefa.Period{}, false
	}
	var err error
	if y, err = strconv.Atoi(ys); err != nil {
		return tarefa.Period{}, false
	}
	if m, err = strconv.Atoi(ms); err != nil || m < 1 || m > 12 {
		return tarefa.Period{}, false
	}
	return tarefa.Period{Project: project, Year: y, Month: time.Month(m)}, true
}

func sortPeriods(ps []tarefa.Period) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].Before(ps[j]) })
}

package export_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"github.com/okian/minocc/internal/adapters/export"
	"github.com/okian/minocc/internal/domain/model"
)

func catalogue(t *testing.T) model.Catalogue {
	t.Helper()

	two, three := 2, 3
	job := func(epoch string, minSize int, maxSize *int, threshold int, phase model.Phase) model.JobRecord {
		return model.JobRecord{
			TrialType: "PGHF", Epoch: epoch, BinWidth: 5, Unit: model.UnitMillisecond,
			MinPatternSize: minSize, MaxPatternSize: maxSize, OccurrenceThreshold: threshold,
			PercentilePoisson: 95, PercentileRates: 50, WindowLength: 4,
			AbsMinSpikes: 2, AbsMinOccurrences: 3, Phase: phase,
		}
	}

	cat := model.NewCatalogue()
	var err error
	cat, err = cat.With(model.Key{Session: "s1", Epoch: "ep1", TrialType: "PGHF"}, []model.JobRecord{
		job("ep1", 2, &two, 13, model.PhaseGrowing),
		job("ep1", 3, &three, 3, model.PhaseGrowing),
		job("ep1", 10, nil, 3, model.PhaseMerged),
	})
	require.NoError(t, err)
	cat, err = cat.With(model.Key{Session: "s2", Epoch: "ep2", TrialType: "PGHF"}, []model.JobRecord{
		job("ep2", 2, nil, 50, model.PhaseGrowing),
	})
	require.NoError(t, err)
	return cat
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, export.Write(&buf, export.FormatJSON, catalogue(t), 4))

	var table map[string]map[string]map[string]map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &table))

	first := table["s1"]["ep1_PGHF"]["0"]
	assert.Equal(t, 13.0, first["min_occ"])
	assert.Equal(t, 2.0, first["min_spikes"])
	assert.Equal(t, "ms", first["unit"])
	assert.Nil(t, table["s1"]["ep1_PGHF"]["2"]["max_spikes"])
	assert.Len(t, table["s2"]["ep2_PGHF"], 1)
}

func TestYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, export.Write(&buf, export.FormatYAML, catalogue(t), 4))

	var table map[string]map[string]map[int]model.JobRecord
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &table))

	assert.Equal(t, 13, table["s1"]["ep1_PGHF"][0].OccurrenceThreshold)
	assert.Equal(t, 3, table["s1"]["ep1_PGHF"][1].MaxSize())
	assert.True(t, table["s1"]["ep1_PGHF"][2].Unbounded())
	assert.Equal(t, model.PhaseMerged, table["s1"]["ep1_PGHF"][2].Phase)
}

func TestXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, export.Write(&buf, export.FormatXLSX, catalogue(t), 4))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"s1", "s2"}, f.GetSheetList())

	rows, err := f.GetRows("s1")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "context", rows[0][0])
	assert.Equal(t, []string{"ep1_PGHF", "0", "ep1", "PGHF", "growing", "2", "2", "13"}, rows[1][:8])
	assert.Equal(t, "", rows[3][6])
	assert.Equal(t, "3", rows[3][7])
}

func TestFIM(t *testing.T) {
	manifests := export.Manifests(catalogue(t), 4)
	m := manifests["s1"]["ep1_PGHF"]

	assert.Equal(t, "s1/transactions_ep1_PGHF.dat", m.Filename)
	assert.Equal(t, 4, m.Winlen)
	require.Len(t, m.Jobs, 3)
	assert.Equal(t, export.FIMJob{MinSupport: 13, MinOccurrences: 2, MinNeurons: 2, MaxSize: 2}, m.Jobs[0])
	assert.Equal(t, 0, m.Jobs[2].MaxSize)

	dir := t.TempDir()
	require.NoError(t, export.ToFile(dir, export.FormatFIM, catalogue(t), 4))

	data, err := os.ReadFile(filepath.Join(dir, "s2", "fim_ep2_PGHF.json"))
	require.NoError(t, err)
	var got export.Manifest
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, []export.FIMJob{{MinSupport: 50, MinOccurrences: 2, MinNeurons: 2}}, got.Jobs)
}

func TestToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "catalogue.json")
	require.NoError(t, export.ToFile(path, export.FormatJSON, catalogue(t), 4))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"min_occ": 13`)
}

func TestUnknownFormat(t *testing.T) {
	err := export.Write(&bytes.Buffer{}, "csv", catalogue(t), 4)
	assert.ErrorIs(t, err, export.ErrUnknownFormat)
}

func TestSheetName(t *testing.T) {
	assert.Equal(t, "a_b_c", export.SheetName("a/b:c"))
	assert.Equal(t, "session", export.SheetName(""))
	assert.Len(t, export.SheetName("abcdefghijklmnopqrstuvwxyz0123456789"), 31)
}

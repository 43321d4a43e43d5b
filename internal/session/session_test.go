package session

import (
	"path/filepath"
	"testing"

	"github.com/omniaweb/hnmigrate/internal/document"
	"github.com/omniaweb/hnmigrate/internal/payload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exportJSON = `{
	"CHANNELS": [{"name":"cam 1","serviceGuid":"cam-old"}],
	"MAPPING": {"services":[
		{"serviceGuid":"cam-old","serviceType":"HypernodeCameraService","serviceName":"Cameras"},
		{"serviceGuid":"rec-old","serviceType":"HypernodeRecordingService","serviceName":"Rec"},
		{"serviceGuid":"gw-old","serviceType":"HypernodeGatewayService"}
	]},
	"RECORDINGS": {"HypernodeRecordingService":"rec-old"},
	"CORETRUST": {"key":"secret"},
	"EXPORTED_AT": "2024-05-01T10:00:00Z"
}`

const newMappingJSON = `{"services":[
	{"serviceGuid":"cam-new","serviceType":"HypernodeCameraService"},
	{"serviceGuid":"rec-a","serviceType":"HypernodeRecordingService","serviceName":"Other"},
	{"serviceGuid":"rec-b","serviceType":"HypernodeRecordingService","serviceName":"Spare"},
	{"serviceGuid":"gw-new","serviceType":"HypernodeGatewayService"}
]}`

var auth = AuthState{BaseURL: "https://gw.example", Token: "tok"}

func loaded(t *testing.T) *State {
	t.Helper()
	s := New()
	require.NoError(t, s.LoadExport("config.json", []byte(exportJSON)))
	return s
}

func TestLoadExport(t *testing.T) {
	s := loaded(t)

	assert.Equal(t, "config.json", s.SourceName)
	assert.Equal(t, []string{"CHANNELS", "MAPPING", "RECORDINGS", "EXPORTED_AT"}, s.Payload.Keys())
	assert.Len(t, s.OldServices(), 2)
	assert.Nil(t, s.Associations)
	assert.False(t, s.Payload.Has("CORETRUST"))
}

func TestLoadExport_ParseErrorDropsExport(t *testing.T) {
	s := loaded(t)

	err := s.LoadExport("broken.json", []byte(`{"CHANNELS":`))
	require.Error(t, err)
	assert.Nil(t, s.Payload)
	assert.Nil(t, s.Selection)
	assert.Equal(t, Readiness{Ready: false, Reasons: []string{"no export loaded"}}, s.Readiness(auth))
}

func TestReadiness(t *testing.T) {
	s := loaded(t)

	r := s.Readiness(AuthState{})
	assert.False(t, r.Ready)
	assert.Equal(t, []string{
		"base URL is not set",
		"not logged in",
		"old and new mappings are both required",
	}, r.Reasons)

	s.SetNewMapping(document.MustParseJSON(newMappingJSON))
	r = s.Readiness(auth)
	assert.False(t, r.Ready)
	assert.Equal(t, []string{"1 services have no association"}, r.Reasons)

	require.NoError(t, s.Select("rec-old", "rec-b"))
	assert.True(t, s.Readiness(auth).Ready)
}

func TestReadiness_WithoutChannels(t *testing.T) {
	s := New()
	require.NoError(t, s.LoadExport("users.json", []byte(`{"USERS":[{"name":"admin"}]}`)))

	assert.True(t, s.Readiness(auth).Ready)

	require.NoError(t, s.Toggle("USERS", false))
	assert.Equal(t, []string{"no section selected"}, s.Readiness(auth).Reasons)
}

func TestBuildImport(t *testing.T) {
	s := loaded(t)

	_, _, err := s.BuildImport()
	require.ErrorIs(t, err, ErrNotReady)
	var nr *NotReadyError
	require.ErrorAs(t, err, &nr)
	assert.Contains(t, nr.Reasons, "old and new mappings are both required")

	s.SetNewMapping(document.MustParseJSON(newMappingJSON))
	require.NoError(t, s.Select("rec-old", "rec-a"))

	body, res, err := s.BuildImport()
	require.NoError(t, err)

	assert.Equal(t, []string{"CHANNELS", "MAPPING", "RECORDINGS", "EXPORTED_AT"}, body.Keys())
	assert.Equal(t, `[{"name":"cam 1","serviceGuid":"cam-new"}]`, body.Get("CHANNELS").String())
	assert.Equal(t, `{"HypernodeRecordingService":"rec-a"}`, body.Get("RECORDINGS").String())
	assert.Equal(t, 4, res.Replacements)
	assert.Empty(t, res.Unmatched)

	again, _, err := s.BuildImport()
	require.NoError(t, err)
	assert.True(t, body.Equal(again), "building twice must give the same body")
	assert.Contains(t, s.Config().String(), "cam-old")
}

func TestBuildImport_DeselectedChannelsCascades(t *testing.T) {
	s := loaded(t)
	s.SetNewMapping(document.MustParseJSON(newMappingJSON))
	require.NoError(t, s.Select("rec-old", "rec-a"))
	require.NoError(t, s.Toggle(payload.KeyChannels, false))

	body, _, err := s.BuildImport()
	require.NoError(t, err)
	assert.Equal(t, []string{"MAPPING", "EXPORTED_AT"}, body.Keys())
}

func TestSetNewMapping_ResetsChoices(t *testing.T) {
	s := loaded(t)
	s.SetNewMapping(document.MustParseJSON(newMappingJSON))
	require.NoError(t, s.Select("rec-old", "rec-a"))

	s.SetNewMapping(document.MustParseJSON(newMappingJSON))
	_, _, ok := s.Associations.Selection("rec-old")
	assert.False(t, ok)
}

func TestSelectWithoutMappings(t *testing.T) {
	s := New()
	assert.ErrorIs(t, s.Select("a", "b"), ErrNoAssociations)
	assert.ErrorIs(t, s.Clear("a"), ErrNoAssociations)
	assert.ErrorIs(t, s.Toggle("CHANNELS", false), ErrNoExport)
	assert.False(t, s.AssociationsComplete())
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions", "current.json")

	s := loaded(t)
	s.SetNewMapping(document.MustParseJSON(newMappingJSON))
	require.NoError(t, s.Select("rec-old", "rec-b"))
	require.NoError(t, s.Toggle(payload.KeyRecordings, false))
	require.NoError(t, s.Save(path))

	restored, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, s.ID, restored.ID)
	assert.Equal(t, s.AssociationMap(), restored.AssociationMap())
	assert.Equal(t, s.Selection.Selected(), restored.Selection.Selected())
	assert.True(t, s.NewMapping.Equal(restored.NewMapping))

	want, _, err := s.BuildImport()
	require.NoError(t, err)
	got, _, err := restored.BuildImport()
	require.NoError(t, err)
	assert.True(t, want.Equal(got))
}

func TestLoad_MissingFile(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.NotNil(t, s)
	assert.Nil(t, s.Payload)
}

func TestSummary(t *testing.T) {
	s := loaded(t)
	sum := s.Summary()

	require.Len(t, sum.CameraServices, 1)
	assert.Equal(t, "cam 1 (cam-old)", sum.CameraServices[0].Label)
	assert.Equal(t, []string{
		"Cameras • HypernodeCameraService",
		"Rec • HypernodeRecordingService",
		"HypernodeGatewayService",
	}, sum.Mapping)

	assert.Empty(t, New().Summary().CameraServices)
}

func TestSelectOnly(t *testing.T) {
	tests := []struct {
		name    string
		keys    []string
		want    []string
		wantErr error
	}{
		{name: "everything", keys: []string{"channels", "RECORDINGS"}, want: []string{"CHANNELS", "MAPPING", "RECORDINGS", "EXPORTED_AT"}},
		{name: "parent only", keys: []string{"CHANNELS"}, want: []string{"CHANNELS", "MAPPING", "EXPORTED_AT"}},
		{name: "locked only", keys: nil, want: []string{"MAPPING", "EXPORTED_AT"}},
		{name: "locked key listed", keys: []string{"MAPPING"}, want: []string{"MAPPING", "EXPORTED_AT"}},
		{name: "dependent without parent", keys: []string{"RECORDINGS"}, wantErr: payload.ErrDisabled},
		{name: "absent section", keys: []string{"USERS"}, wantErr: payload.ErrNotEligible},
		{name: "blocked section", keys: []string{"CORETRUST"}, wantErr: payload.ErrNotEligible},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := loaded(t)
			err := s.SelectOnly(tt.keys)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Selection.Selected())
		})
	}

	assert.ErrorIs(t, New().SelectOnly(nil), ErrNoExport)
}

func TestSelectOnly_RejectedKeepsSelection(t *testing.T) {
	s := loaded(t)
	before := s.Selection.Selected()

	err := s.SelectOnly([]string{"RECORDINGS"})
	require.ErrorIs(t, err, payload.ErrDisabled)
	assert.Equal(t, before, s.Selection.Selected())
	assert.True(t, s.Selection.IsSelected(payload.KeyChannels))
}

func TestProblems(t *testing.T) {
	s := loaded(t)
	assert.Equal(t, []string{"old and new mappings are both required"}, s.Problems())

	s.SetNewMapping(document.MustParseJSON(newMappingJSON))
	require.NoError(t, s.Select("rec-old", "rec-b"))
	assert.Empty(t, s.Problems())
}

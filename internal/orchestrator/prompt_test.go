package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kandev/kaiak/pkg/jsonrpc"
)

func TestRenderPrompt_SingleIncidentOmitsNumbering(t *testing.T) {
	got := RenderPrompt([]jsonrpc.Incident{{Message: "replace javax imports with jakarta"}})
	require.Equal(t, "Solve this migration issue: replace javax imports with jakarta", got)
}

func TestRenderPrompt_MultipleIncidentsAreNumbered(t *testing.T) {
	got := RenderPrompt([]jsonrpc.Incident{
		{Message: "replace javax imports with jakarta"},
		{Message: "update persistence.xml schema version"},
		{Message: "remove deprecated EJB interfaces"},
	})
	want := "Solve these migration issues:\n" +
		"1. replace javax imports with jakarta\n" +
		"2. update persistence.xml schema version\n" +
		"3. remove deprecated EJB interfaces"
	require.Equal(t, want, got)
}

func TestRenderPrompt_IsDeterministic(t *testing.T) {
	incidents := []jsonrpc.Incident{
		{Message: "first", Severity: "high", File: "a.java", Line: 10},
		{Message: "second"},
	}
	first := RenderPrompt(incidents)
	for i := 0; i < 5; i++ {
		require.Equal(t, first, RenderPrompt(incidents))
	}
}

func TestValidateGenerateFix_IncidentCountBounds(t *testing.T) {
	base := validGenerateFixReq("b2f4f8f0-0000-4000-8000-000000000001")

	empty := base
	empty.Incidents = nil
	require.Error(t, validateGenerateFix(empty))

	tooMany := base
	tooMany.Incidents = make([]jsonrpc.Incident, maxIncidents+1)
	for i := range tooMany.Incidents {
		tooMany.Incidents[i] = jsonrpc.Incident{Message: "m"}
	}
	require.Error(t, validateGenerateFix(tooMany))

	atLimit := base
	atLimit.Incidents = make([]jsonrpc.Incident, maxIncidents)
	for i := range atLimit.Incidents {
		atLimit.Incidents[i] = jsonrpc.Incident{Message: "m"}
	}
	require.NoError(t, validateGenerateFix(atLimit))
}

func TestValidateGenerateFix_RejectsEmptyIncidentMessage(t *testing.T) {
	req := validGenerateFixReq("b2f4f8f0-0000-4000-8000-000000000001")
	req.Incidents = []jsonrpc.Incident{{Message: "ok"}, {Message: ""}}
	require.Error(t, validateGenerateFix(req))
}

func TestValidateGenerateFix_RejectsNonUUIDSessionID(t *testing.T) {
	req := validGenerateFixReq("session-one")
	require.Error(t, validateGenerateFix(req))
}

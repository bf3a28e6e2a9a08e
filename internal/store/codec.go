package store

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = eris.New("store: not found")

type runRecord struct {
	queries []byte
	summary []byte
	leads   []byte
}

func encodeRun(run *model.Run) (runRecord, error) {
	if run == nil || run.ID == "" {
		return runRecord{}, eris.New("store: run id is required")
	}
	var (
		rec runRecord
		err error
	)
	queries := run.Queries
	if queries == nil {
		queries = []string{}
	}
	if rec.queries, err = json.Marshal(queries); err != nil {
		return runRecord{}, eris.Wrap(err, "store: marshal queries")
	}
	if rec.summary, err = json.Marshal(run.Summary); err != nil {
		return runRecord{}, eris.Wrap(err, "store: marshal summary")
	}
	leads := run.Leads
	if leads == nil {
		leads = []model.Lead{}
	}
	if rec.leads, err = json.Marshal(leads); err != nil {
		return runRecord{}, eris.Wrap(err, "store: marshal leads")
	}
	return rec, nil
}

func decodeRun(run *model.Run, queries, summary, leads []byte) error {
	if len(queries) > 0 {
		if err := json.Unmarshal(queries, &run.Queries); err != nil {
			return eris.Wrap(err, "store: unmarshal queries")
		}
	}
	if len(summary) > 0 {
		if err := json.Unmarshal(summary, &run.Summary); err != nil {
			return eris.Wrap(err, "store: unmarshal summary")
		}
	}
	if len(leads) > 0 {
		if err := json.Unmarshal(leads, &run.Leads); err != nil {
			return eris.Wrap(err, "store: unmarshal leads")
		}
	}
	return nil
}

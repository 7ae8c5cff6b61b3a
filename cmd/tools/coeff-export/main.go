// Command coeff-export dumps a stored fit session to JSON so the
// coefficients can be inspected or consumed outside the SQLite file.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"math"
	"os"
	"time"

	"github.com/amisr-data/ionofit/internal/iono/store"
)

var (
	dbPath    = flag.String("db", "ionofit.db", "Coefficient file to read")
	sessionID = flag.String("session", "", "Session identifier to export (defaults to the newest)")
)

// NaN slots from disqualified records are emitted as JSON null, since JSON
// has no NaN literal.
type exportRecord struct {
	Start  time.Time  `json:"start"`
	End    time.Time  `json:"end"`
	Chi2   *float64   `json:"chi2"`
	Coeffs []*float64 `json:"coeffs"`
	Cov    []*float64 `json:"cov"`
}

type exportDocument struct {
	Session string         `json:"session"`
	Source  string         `json:"source"`
	Method  string         `json:"method"`
	Kinds   []string       `json:"kinds"`
	Hull    [][3]float64   `json:"hull,omitempty"`
	Records []exportRecord `json:"records"`
}

func main() {
	flag.Parse()

	st, err := store.Open(*dbPath)
	if err != nil {
		log.Fatalf("opening %s: %v", *dbPath, err)
	}
	defer st.Close()

	id := *sessionID
	if id == "" {
		infos, err := st.Sessions()
		if err != nil {
			log.Fatalf("listing sessions: %v", err)
		}
		if len(infos) == 0 {
			log.Fatalf("no sessions in %s", *dbPath)
		}
		id = infos[0].ID
	}

	res, err := st.LoadResult(id)
	if err != nil {
		log.Fatalf("loading session %s: %v", id, err)
	}

	doc := exportDocument{
		Session: id,
		Source:  res.Source,
		Method:  res.Method,
		Hull:    res.Hull,
	}
	for _, k := range res.Kinds {
		doc.Kinds = append(doc.Kinds, string(k))
	}
	for i := range res.Chi2 {
		doc.Records = append(doc.Records, exportRecord{
			Start:  res.Start[i],
			End:    res.End[i],
			Chi2:   nullable(res.Chi2[i]),
			Coeffs: nullables(res.Coeffs[i]),
			Cov:    nullables(res.Cov[i]),
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		log.Fatalf("encoding session: %v", err)
	}
}

func nullable(x float64) *float64 {
	if math.IsNaN(x) {
		return nil
	}
	return &x
}

func nullables(xs []float64) []*float64 {
	out := make([]*float64, len(xs))
	for i := range xs {
		out[i] = nullable(xs[i])
	}
	return out
}

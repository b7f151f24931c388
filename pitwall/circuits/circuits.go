// Package circuits ships static venue metadata for the current calendar.
package circuits

import (
	"strings"

	"github.com/armon/go-radix"
)

// LapRecord is the fastest race lap set at a venue.
type LapRecord struct {
	Time   string `json:"time"`
	Driver string `json:"driver"`
	Year   int    `json:"year"`
}

// Info describes a circuit.
type Info struct {
	Name          string    `json:"circuit_name"`
	TrackLengthKm float64   `json:"track_length_km"`
	Laps          int       `json:"laps"`
	LapRecord     LapRecord `json:"lap_record"`
	FirstGP       int       `json:"first_gp"`
	Type          string    `json:"circuit_type"`
}

const (
	purposeBuilt = "Purpose-built"
	street       = "Street circuit"
)

var (
	bahrain    = Info{"Bahrain International Circuit", 5.412, 57, LapRecord{"1:31.447", "Pedro de la Rosa", 2005}, 2004, purposeBuilt}
	jeddah     = Info{"Jeddah Corniche Circuit", 6.174, 50, LapRecord{"1:30.734", "Lewis Hamilton", 2021}, 2021, street}
	albertPark = Info{"Albert Park Circuit", 5.278, 58, LapRecord{"1:19.813", "Charles Leclerc", 2024}, 1996, street}
	suzuka     = Info{"Suzuka International Racing Course", 5.807, 53, LapRecord{"1:30.983", "Lewis Hamilton", 2019}, 1987, purposeBuilt}
	shanghai   = Info{"Shanghai International Circuit", 5.451, 56, LapRecord{"1:32.238", "Michael Schumacher", 2004}, 2004, purposeBuilt}
	miami      = Info{"Miami International Autodrome", 5.412, 57, LapRecord{"1:29.708", "Max Verstappen", 2023}, 2022, street}
	imola      = Info{"Autodromo Enzo e Dino Ferrari", 4.909, 63, LapRecord{"1:15.484", "Lewis Hamilton", 2020}, 1980, purposeBuilt}
	monaco     = Info{"Circuit de Monaco", 3.337, 78, LapRecord{"1:12.909", "Lewis Hamilton", 2021}, 1950, street}
	catalunya  = Info{"Circuit de Barcelona-Catalunya", 4.657, 66, LapRecord{"1:16.330", "Max Verstappen", 2023}, 1991, purposeBuilt}
	villeneuve = Info{"Circuit Gilles Villeneuve", 4.361, 70, LapRecord{"1:13.078", "Valtteri Bottas", 2019}, 1978, "Semi-street circuit"}
	redBull    = Info{"Red Bull Ring", 4.318, 71, LapRecord{"1:05.619", "Carlos Sainz", 2020}, 1970, purposeBuilt}
	silverst   = Info{"Silverstone Circuit", 5.891, 52, LapRecord{"1:27.097", "Max Verstappen", 2020}, 1950, purposeBuilt}
	hungaro    = Info{"Hungaroring", 4.381, 70, LapRecord{"1:16.627", "Lewis Hamilton", 2020}, 1986, purposeBuilt}
	spa        = Info{"Circuit de Spa-Francorchamps", 7.004, 44, LapRecord{"1:46.286", "Valtteri Bottas", 2018}, 1950, purposeBuilt}
	zandvoort  = Info{"Circuit Zandvoort", 4.259, 72, LapRecord{"1:11.097", "Lewis Hamilton", 2021}, 1952, purposeBuilt}
	monza      = Info{"Autodromo Nazionale Monza", 5.793, 53, LapRecord{"1:21.046", "Rubens Barrichello", 2004}, 1950, purposeBuilt}
	baku       = Info{"Baku City Circuit", 6.003, 51, LapRecord{"1:43.009", "Charles Leclerc", 2019}, 2016, street}
	marinaBay  = Info{"Marina Bay Street Circuit", 4.940, 62, LapRecord{"1:35.867", "Lewis Hamilton", 2023}, 2008, street}
	cota       = Info{"Circuit of the Americas", 5.513, 56, LapRecord{"1:36.169", "Charles Leclerc", 2019}, 2012, purposeBuilt}
	mexico     = Info{"Autódromo Hermanos Rodríguez", 4.304, 71, LapRecord{"1:17.774", "Valtteri Bottas", 2021}, 1963, purposeBuilt}
	interlagos = Info{"Autódromo José Carlos Pace (Interlagos)", 4.309, 71, LapRecord{"1:10.540", "Valtteri Bottas", 2018}, 1973, purposeBuilt}
	lasVegas   = Info{"Las Vegas Strip Circuit", 6.201, 50, LapRecord{"1:35.490", "Oscar Piastri", 2024}, 2023, street}
	lusail     = Info{"Lusail International Circuit", 5.419, 57, LapRecord{"1:24.319", "Max Verstappen", 2023}, 2021, purposeBuilt}
	yasMarina  = Info{"Yas Marina Circuit", 5.281, 58, LapRecord{"1:26.103", "Max Verstappen", 2021}, 2009, purposeBuilt}
	madrid     = Info{"Circuito de Madrid IFEMA", 5.473, 66, LapRecord{"-", "-", 0}, 2026, purposeBuilt}
)

// localities maps every locality spelling used by the schedule sources.
var localities = map[string]Info{
	"sakhir":            bahrain,
	"jeddah":            jeddah,
	"melbourne":         albertPark,
	"suzuka":            suzuka,
	"shanghai":          shanghai,
	"miami":             miami,
	"miami gardens":     miami,
	"imola":             imola,
	"monte carlo":       monaco,
	"monte-carlo":       monaco,
	"monaco":            monaco,
	"barcelona":         catalunya,
	"montmeló":          catalunya,
	"montreal":          villeneuve,
	"montréal":          villeneuve,
	"spielberg":         redBull,
	"silverstone":       silverst,
	"budapest":          hungaro,
	"mogyoród":          hungaro,
	"spa":               spa,
	"spa-francorchamps": spa,
	"stavelot":          spa,
	"zandvoort":         zandvoort,
	"monza":             monza,
	"baku":              baku,
	"marina bay":        marinaBay,
	"singapore":         marinaBay,
	"austin":            cota,
	"mexico city":       mexico,
	"são paulo":         interlagos,
	"sao paulo":         interlagos,
	"las vegas":         lasVegas,
	"lusail":            lusail,
	"al daayen":         lusail,
	"yas island":        yasMarina,
	"yas marina":        yasMarina,
	"abu dhabi":         yasMarina,
	"madrid":            madrid,
}

// Table resolves venue metadata by locality.
type Table struct {
	tree *radix.Tree
}

// Default is the table built from the shipped venue list.
var Default = New()

// New builds a lookup table over the shipped venue list.
func New() *Table {
	tree := radix.New()
	for k, v := range localities {
		tree.Insert(k, v)
	}
	return &Table{tree: tree}
}

// Lookup resolves a "Locality, Country" string. The full string is tried
// first, then the locality before the comma, then the longest known prefix
// (so "Spa, Belgium" and "Monte-Carlo, Monaco" both resolve).
func (t *Table) Lookup(location string) (Info, bool) {
	key := normalize(location)
	if key == "" {
		return Info{}, false
	}
	if v, ok := t.tree.Get(key); ok {
		return v.(Info), true
	}

	city := key
	if i := strings.Index(key, ","); i >= 0 {
		city = strings.TrimSpace(key[:i])
	}
	if v, ok := t.tree.Get(city); ok {
		return v.(Info), true
	}

	if _, v, ok := t.tree.LongestPrefix(city); ok {
		return v.(Info), true
	}
	return Info{}, false
}

// Localities lists every known spelling starting with prefix.
func (t *Table) Localities(prefix string) []string {
	var out []string
	t.tree.WalkPrefix(normalize(prefix), func(s string, _ interface{}) bool {
		out = append(out, s)
		return false
	})
	return out
}

// Lookup resolves location against the default table.
func Lookup(location string) (Info, bool) {
	return Default.Lookup(location)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

package tle

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// LineLength is the fixed width of each element line.
const LineLength = 69

// deepSpacePeriod is the orbital period at which SGP4 switches to the
// deep-space (SDP4) branch.
const deepSpacePeriod = 225 * time.Minute

// ElementSet is a decoded two-line element set. Angles are in degrees, mean
// motion in revolutions per day.
type ElementSet struct {
	CatalogID      int
	Name           string
	Designator     string
	Epoch          time.Time
	MeanMotionDot  float64 // first derivative / 2, rev/day²
	MeanMotionDDot float64 // second derivative / 6, rev/day³
	BStar          float64 // 1/earth radii
	Inclination    float64
	RAAN           float64
	Eccentricity   float64
	ArgPerigee     float64
	MeanAnomaly    float64
	MeanMotion     float64
	Lines          Lines
}

// Period returns the orbital period implied by the mean motion.
func (e *ElementSet) Period() time.Duration {
	return time.Duration(float64(24*time.Hour) / e.MeanMotion)
}

// DeepSpace reports whether the set falls in the SDP4 regime.
func (e *ElementSet) DeepSpace() bool {
	return e.Period() >= deepSpacePeriod
}

// Age returns how far now is from the element-set epoch. Negative when the
// epoch is in the future.
func (e *ElementSet) Age(now time.Time) time.Duration {
	return now.Sub(e.Epoch)
}

// Decode validates both lines column by column and decodes them. Every
// column read by the SGP4 initialiser is checked with the same preprocessing
// it applies, since that library aborts the process on malformed numbers.
func Decode(l Lines) (*ElementSet, error) {
	l1, l2 := l.Line1, l.Line2
	if len(l1) != LineLength {
		return nil, formatErr(1, "", "length %d, expected %d", len(l1), LineLength)
	}
	if len(l2) != LineLength {
		return nil, formatErr(2, "", "length %d, expected %d", len(l2), LineLength)
	}
	if l1[0] != '1' || l1[1] != ' ' {
		return nil, formatErr(1, "", "must start with \"1 \", got %q", l1[:2])
	}
	if l2[0] != '2' || l2[1] != ' ' {
		return nil, formatErr(2, "", "must start with \"2 \", got %q", l2[:2])
	}

	id1, err := catalogNumber(l1[2:7])
	if err != nil {
		return nil, formatErr(1, "catalog number", "%v", err)
	}
	id2, err := catalogNumber(l2[2:7])
	if err != nil {
		return nil, formatErr(2, "catalog number", "%v", err)
	}
	if id1 != id2 {
		return nil, formatErr(0, "", "catalog numbers differ: %d on line 1, %d on line 2", id1, id2)
	}

	if _, err := strconv.ParseInt(l1[18:20], 10, 0); err != nil {
		return nil, formatErr(1, "epoch year", "%q is not an integer", l1[18:20])
	}
	epoch, err := parseEpoch(l1[18:32])
	if err != nil {
		return nil, formatErr(1, "epoch", "%v", err)
	}

	d := &columnDecoder{}
	set := &ElementSet{
		CatalogID:      id1,
		Designator:     strings.TrimSpace(l1[9:17]),
		Epoch:          epoch,
		MeanMotionDot:  d.float(1, "mean motion derivative", compact(l1[33:43])),
		MeanMotionDDot: d.float(1, "mean motion second derivative", compact(l1[44:45]+"."+l1[45:50]+"e"+l1[50:52])),
		BStar:          d.float(1, "bstar", compact(l1[53:54]+"."+l1[54:59]+"e"+l1[59:61])),
		Inclination:    d.float(2, "inclination", compact(l2[8:16])),
		RAAN:           d.float(2, "right ascension", compact(l2[17:25])),
		Eccentricity:   d.float(2, "eccentricity", "."+l2[26:33]),
		ArgPerigee:     d.float(2, "argument of perigee", compact(l2[34:42])),
		MeanAnomaly:    d.float(2, "mean anomaly", compact(l2[43:51])),
		MeanMotion:     d.float(2, "mean motion", compact(l2[52:63])),
		Lines:          l,
	}
	if d.err != nil {
		return nil, d.err
	}

	switch {
	case set.Eccentricity < 0 || set.Eccentricity >= 1:
		return nil, formatErr(2, "eccentricity", "%v outside [0, 1)", set.Eccentricity)
	case set.Inclination < 0 || set.Inclination > 180:
		return nil, formatErr(2, "inclination", "%v outside [0, 180]", set.Inclination)
	case set.MeanMotion <= 0:
		return nil, formatErr(2, "mean motion", "%v must be positive", set.MeanMotion)
	}

	return set, nil
}

// columnDecoder keeps the first parse failure so a run of fields can be
// decoded without an error check after each one.
type columnDecoder struct {
	err *FormatError
}

func (d *columnDecoder) float(line int, field, s string) float64 {
	if d.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		d.err = formatErr(line, field, "%q is not a number", s)
		return 0
	}
	return v
}

// compact removes up to two spaces, matching the SGP4 initialiser.
func compact(s string) string {
	return strings.Replace(s, " ", "", 2)
}

func catalogNumber(s string) (int, error) {
	trimmed := strings.TrimSpace(s)
	n, err := strconv.ParseInt(trimmed, 10, 0)
	if err != nil {
		return 0, err
	}
	if _, err := strconv.ParseInt(compact(s), 10, 0); err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, strconv.ErrRange
	}
	return int(n), nil
}

package hiring

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Query-string codecs for the search filters. Lists are comma separated and
// coordinates are written as "lat,lng".

func (f HumanFilter) Query() url.Values {
	v := url.Values{}
	setList(v, "skills", f.Skills)
	setList(v, "equipment", f.Equipment)
	setString(v, "language", f.Language)
	setString(v, "work_mode", string(f.WorkMode))
	setCents(v, "max_rate_cents", f.MaxRate)
	setNear(v, f.Near, f.RadiusKm)
	if f.Verified {
		v.Set("verified", "true")
	}
	setPage(v, f.Limit, f.Offset)
	return v
}

// ParseHumanFilter decodes the search_humans query string.
func ParseHumanFilter(v url.Values) (HumanFilter, error) {
	p := queryParser{v: v}
	f := HumanFilter{
		Skills:    p.list("skills"),
		Equipment: p.list("equipment"),
		Language:  strings.TrimSpace(v.Get("language")),
		WorkMode:  WorkMode(strings.ToUpper(v.Get("work_mode"))),
		MaxRate:   Cents(p.int64("max_rate_cents")),
		Near:      p.near(),
		RadiusKm:  p.float("radius_km"),
		Verified:  p.bool("verified"),
		Limit:     int(p.int64("limit")),
		Offset:    int(p.int64("offset")),
	}
	if p.err != nil {
		return HumanFilter{}, p.err
	}
	if f.WorkMode != "" && !f.WorkMode.Valid() {
		return HumanFilter{}, Invalid("work_mode", "work mode must be REMOTE, ONSITE or HYBRID")
	}
	return f, nil
}

func (f ListingFilter) Query() url.Values {
	v := url.Values{}
	setList(v, "skills", f.Skills)
	setString(v, "category", f.Category)
	setString(v, "work_mode", string(f.WorkMode))
	setCents(v, "min_budget_cents", f.MinBudget)
	setCents(v, "max_budget_cents", f.MaxBudget)
	setNear(v, f.Near, f.RadiusKm)
	setString(v, "status", string(f.Status))
	setPage(v, f.Limit, f.Offset)
	return v
}

// ParseListingFilter decodes the browse_listings query string.
func ParseListingFilter(v url.Values) (ListingFilter, error) {
	p := queryParser{v: v}
	f := ListingFilter{
		Skills:    p.list("skills"),
		Category:  strings.TrimSpace(v.Get("category")),
		WorkMode:  WorkMode(strings.ToUpper(v.Get("work_mode"))),
		MinBudget: Cents(p.int64("min_budget_cents")),
		MaxBudget: Cents(p.int64("max_budget_cents")),
		Near:      p.near(),
		RadiusKm:  p.float("radius_km"),
		Status:    ListingStatus(strings.ToUpper(v.Get("status"))),
		Limit:     int(p.int64("limit")),
		Offset:    int(p.int64("offset")),
	}
	if p.err != nil {
		return ListingFilter{}, p.err
	}
	if f.WorkMode != "" && !f.WorkMode.Valid() {
		return ListingFilter{}, Invalid("work_mode", "work mode must be REMOTE, ONSITE or HYBRID")
	}
	return f, nil
}

func setString(v url.Values, key, val string) {
	if val != "" {
		v.Set(key, val)
	}
}

func setList(v url.Values, key string, vals []string) {
	if len(vals) > 0 {
		v.Set(key, strings.Join(vals, ","))
	}
}

func setCents(v url.Values, key string, c Cents) {
	if c != 0 {
		v.Set(key, strconv.FormatInt(int64(c), 10))
	}
}

func setNear(v url.Values, near *Coordinates, radius float64) {
	if near != nil {
		v.Set("near", fmt.Sprintf("%g,%g", near.Lat, near.Lng))
	}
	if radius != 0 {
		v.Set("radius_km", strconv.FormatFloat(radius, 'f', -1, 64))
	}
}

func setPage(v url.Values, limit, offset int) {
	if limit != 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	if offset != 0 {
		v.Set("offset", strconv.Itoa(offset))
	}
}

// queryParser keeps the first decoding error.
type queryParser struct {
	v   url.Values
	err error
}

func (p *queryParser) fail(key string) {
	if p.err == nil {
		p.err = Invalid(key, "%s has an invalid value %q", key, p.v.Get(key))
	}
}

func (p *queryParser) list(key string) []string {
	raw := p.v.Get(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (p *queryParser) int64(key string) int64 {
	raw := p.v.Get(key)
	if raw == "" {
		return 0
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		p.fail(key)
	}
	return n
}

func (p *queryParser) float(key string) float64 {
	raw := p.v.Get(key)
	if raw == "" {
		return 0
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(key)
	}
	return f
}

func (p *queryParser) bool(key string) bool {
	raw := p.v.Get(key)
	if raw == "" {
		return false
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(key)
	}
	return b
}

func (p *queryParser) near() *Coordinates {
	raw := p.v.Get("near")
	if raw == "" {
		return nil
	}
	lat, lng, ok := strings.Cut(raw, ",")
	if !ok {
		p.fail("near")
		return nil
	}
	la, err1 := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	ln, err2 := strconv.ParseFloat(strings.TrimSpace(lng), 64)
	if err1 != nil || err2 != nil {
		p.fail("near")
		return nil
	}
	return &Coordinates{Lat: la, Lng: ln}
}

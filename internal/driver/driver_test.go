package driver

import (
	"testing"
	"time"

	"github.com/geodex/geodex/pkg/errors"
)

func mustLookup(t *testing.T, name string) *Driver {
	t.Helper()
	d, err := Lookup(name)
	if err != nil {
		t.Fatalf("Lookup(%q): %v", name, err)
	}
	return d
}

func TestLookup_Unknown(t *testing.T) {
	_, err := Lookup("no-such-driver")
	if !errors.HasCode(err, errors.ErrCodeUnknownDriver) {
		t.Fatalf("expected UNKNOWN_DRIVER, got %v", err)
	}
}

func TestNames_IncludesRegistered(t *testing.T) {
	names := Names()
	want := map[string]bool{"modis": false, "landsat": false, "prism": false, "sentinel2": false}
	for _, n := range names {
		if _, ok := want[n]; ok {
			want[n] = true
		}
	}
	for n, found := range want {
		if !found {
			t.Errorf("driver %q not registered", n)
		}
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("Names not sorted: %v", names)
		}
	}
}

func TestModis_ParseName(t *testing.T) {
	d := mustLookup(t, "modis")

	at, parsed, err := d.ParseName("MOD08_D3.A2017001.006.2017012060145.hdf")
	if err != nil {
		t.Fatalf("ParseName: %v", err)
	}
	if at.Name != "MOD08" {
		t.Errorf("asset type = %q, want MOD08", at.Name)
	}
	if parsed.Tile != "h01v01" {
		t.Errorf("tile = %q, want fixed h01v01", parsed.Tile)
	}
	if parsed.Sensor != "MOD" {
		t.Errorf("sensor = %q, want MOD", parsed.Sensor)
	}
	wantDate := time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)
	if len(parsed.Dates) != 1 || !parsed.Dates[0].Equal(wantDate) {
		t.Errorf("dates = %v, want [%v]", parsed.Dates, wantDate)
	}

	at, parsed, err = d.ParseName("MCD43A4.A2012336.h12v04.006.2016112010833.hdf")
	if err != nil {
		t.Fatalf("ParseName: %v", err)
	}
	if at.Name != "MCD43A4" {
		t.Errorf("asset type = %q, want MCD43A4", at.Name)
	}
	if parsed.Tile != "h12v04" {
		t.Errorf("tile = %q, want h12v04", parsed.Tile)
	}
	if parsed.Sensor != "MCD" {
		t.Errorf("sensor = %q, want MCD", parsed.Sensor)
	}
}

func TestModis_VersionOrdering(t *testing.T) {
	d := mustLookup(t, "modis")
	_, older, err := d.ParseName("MOD08_D3.A2017001.006.2017012060145.hdf")
	if err != nil {
		t.Fatal(err)
	}
	// Later reprocessing within the same collection.
	_, newer, err := d.ParseName("MOD08_D3.A2017001.006.2018100000000.hdf")
	if err != nil {
		t.Fatal(err)
	}
	if !(newer.Version > older.Version) {
		t.Errorf("reprocessed stamp must outrank: %v <= %v", newer.Version, older.Version)
	}
	// A newer collection outranks any stamp in an older one.
	_, coll61, err := d.ParseName("MOD08_D3.A2017001.061.2017001000000.hdf")
	if err != nil {
		t.Fatal(err)
	}
	if !(coll61.Version > newer.Version) {
		t.Errorf("collection 061 must outrank 006: %v <= %v", coll61.Version, newer.Version)
	}
}

func TestLandsat_ParseName(t *testing.T) {
	d := mustLookup(t, "landsat")

	at, parsed, err := d.ParseName("LC08_L1TP_012030_20170801_20170811_01_T1.tar.gz")
	if err != nil {
		t.Fatalf("ParseName: %v", err)
	}
	if at.Name != "C1" {
		t.Errorf("asset type = %q, want C1", at.Name)
	}
	if parsed.Tile != "012030" {
		t.Errorf("tile = %q, want 012030", parsed.Tile)
	}
	if parsed.Sensor != "LC8" {
		t.Errorf("sensor = %q, want LC8", parsed.Sensor)
	}
	wantDate := time.Date(2017, 8, 1, 0, 0, 0, 0, time.UTC)
	if !parsed.Dates[0].Equal(wantDate) {
		t.Errorf("date = %v, want %v (acquisition, not processing)", parsed.Dates[0], wantDate)
	}

	at, parsed, err = d.ParseName("LC80120302015352LGN01.tar.gz")
	if err != nil {
		t.Fatalf("ParseName: %v", err)
	}
	if at.Name != "DN" {
		t.Errorf("asset type = %q, want DN", at.Name)
	}
	if parsed.Tile != "012030" {
		t.Errorf("tile = %q, want 012030", parsed.Tile)
	}
	wantDate = time.Date(2015, 12, 18, 0, 0, 0, 0, time.UTC)
	if !parsed.Dates[0].Equal(wantDate) {
		t.Errorf("date = %v, want %v", parsed.Dates[0], wantDate)
	}
}

func TestLandsat_C1VersionOrdering(t *testing.T) {
	d := mustLookup(t, "landsat")
	parse := func(name string) float64 {
		t.Helper()
		_, p, err := d.ParseName(name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		return p.Version
	}
	rt := parse("LC08_L1TP_012030_20170801_20170802_01_RT.tar.gz")
	t1 := parse("LC08_L1TP_012030_20170801_20170811_01_T1.tar.gz")
	if !(t1 > rt) {
		t.Errorf("tier 1 reprocessing must outrank real-time: %v <= %v", t1, rt)
	}
	// Same tier, later processing run.
	later := parse("LC08_L1TP_012030_20170801_20180115_01_T1.tar.gz")
	if !(later > t1) {
		t.Errorf("later processing date must outrank: %v <= %v", later, t1)
	}
	// A higher collection number dominates everything within a lower one.
	c2 := parse("LC08_L1TP_012030_20170801_20170802_02_RT.tar.gz")
	if !(c2 > later) {
		t.Errorf("collection 02 must outrank 01: %v <= %v", c2, later)
	}
}

func TestPrism_ParseName(t *testing.T) {
	d := mustLookup(t, "prism")
	at, parsed, err := d.ParseName("PRISM_ppt_stable_4kmD2_19820101_bil.zip")
	if err != nil {
		t.Fatalf("ParseName: %v", err)
	}
	if at.Name != "_ppt" {
		t.Errorf("asset type = %q, want _ppt", at.Name)
	}
	if parsed.Tile != "CONUS" {
		t.Errorf("tile = %q, want CONUS", parsed.Tile)
	}

	stable := parsed.Version
	_, early, err := d.ParseName("PRISM_ppt_early_4kmD2_19820101_bil.zip")
	if err != nil {
		t.Fatal(err)
	}
	if !(stable > early.Version) {
		t.Errorf("stable must outrank early: %v <= %v", stable, early.Version)
	}
	_, rev3, err := d.ParseName("PRISM_ppt_early_4kmD3_19820101_bil.zip")
	if err != nil {
		t.Fatal(err)
	}
	if !(rev3.Version > stable) {
		t.Errorf("revision D3 must outrank D2 at any stability: %v <= %v", rev3.Version, stable)
	}
}

func TestSentinel2_ParseName(t *testing.T) {
	d := mustLookup(t, "sentinel2")
	at, parsed, err := d.ParseName("S2A_MSIL1C_20170101T110442_N0204_R094_T30TYN_20170101T110441.zip")
	if err != nil {
		t.Fatalf("ParseName: %v", err)
	}
	if at.Name != "L1C" {
		t.Errorf("asset type = %q, want L1C", at.Name)
	}
	if parsed.Tile != "30TYN" {
		t.Errorf("tile = %q, want 30TYN", parsed.Tile)
	}
	if parsed.Sensor != "S2A" {
		t.Errorf("sensor = %q, want S2A", parsed.Sensor)
	}
	if parsed.Version != 204 {
		t.Errorf("version = %v, want 204", parsed.Version)
	}
}

func TestParseName_Unparseable(t *testing.T) {
	d := mustLookup(t, "landsat")
	_, _, err := d.ParseName("random_junk.txt")
	if !errors.HasCode(err, errors.ErrCodeUnparseableAsset) {
		t.Fatalf("expected UNPARSEABLE_ASSET, got %v", err)
	}
}

func TestParseName_Deterministic(t *testing.T) {
	d := mustLookup(t, "prism")
	for i := 0; i < 20; i++ {
		at, _, err := d.ParseName("PRISM_tmin_provisional_4kmD2_20170101_bil.zip")
		if err != nil {
			t.Fatal(err)
		}
		if at.Name != "_tmin" {
			t.Fatalf("iteration %d resolved %q", i, at.Name)
		}
	}
}

func TestAssetType_Available(t *testing.T) {
	now := time.Date(2017, 6, 15, 0, 0, 0, 0, time.UTC)
	d := mustLookup(t, "landsat")

	dn := d.Assets["DN"]
	c1 := d.Assets["C1"]
	tests := []struct {
		name string
		at   *AssetType
		date time.Time
		want bool
	}{
		{"DN before start", dn, time.Date(1983, 1, 1, 0, 0, 0, 0, time.UTC), false},
		{"DN in window", dn, time.Date(2015, 12, 18, 0, 0, 0, 0, time.UTC), true},
		{"DN after end", dn, time.Date(2017, 5, 1, 0, 0, 0, 0, time.UTC), false},
		{"C1 within latency", c1, time.Date(2017, 6, 10, 0, 0, 0, 0, time.UTC), false},
		{"C1 past latency", c1, time.Date(2017, 6, 3, 0, 0, 0, 0, time.UTC), true},
	}
	for _, tt := range tests {
		if got := tt.at.Available(tt.date, now); got != tt.want {
			t.Errorf("%s: Available = %v, want %v", tt.name, got, tt.want)
		}
	}

	// Negative latency extends availability past the present.
	prism := mustLookup(t, "prism").Assets["_ppt"]
	if !prism.Available(now.AddDate(0, 0, 5), now) {
		t.Error("early release should be available ahead of the calendar day")
	}
}

func TestProduct_Available(t *testing.T) {
	now := time.Date(2017, 6, 15, 0, 0, 0, 0, time.UTC)
	windowed := &Product{
		Name:      "avg",
		StartDate: time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC),
		Latency:   30,
	}
	open := &Product{Name: "raw"}

	tests := []struct {
		name string
		p    *Product
		date time.Time
		want bool
	}{
		{"before product start", windowed, time.Date(2015, 6, 1, 0, 0, 0, 0, time.UTC), false},
		{"in window", windowed, time.Date(2016, 6, 1, 0, 0, 0, 0, time.UTC), true},
		{"within latency", windowed, time.Date(2017, 6, 1, 0, 0, 0, 0, time.UTC), false},
		{"at latency edge", windowed, time.Date(2017, 5, 16, 0, 0, 0, 0, time.UTC), true},
		{"no window set", open, time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC), true},
	}
	for _, tt := range tests {
		if got := tt.p.Available(tt.date, now); got != tt.want {
			t.Errorf("%s: Available = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestProductsToAssets(t *testing.T) {
	d := mustLookup(t, "landsat")
	types, err := d.ProductsToAssets([]string{"ndvi-toa", "ref-toa"})
	if err != nil {
		t.Fatal(err)
	}
	// Preference order of the first product, without duplicates.
	want := []string{"C1", "DN"}
	if len(types) != len(want) {
		t.Fatalf("asset types = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("asset types = %v, want %v", types, want)
		}
	}

	_, err = d.ProductsToAssets([]string{"no-such-product"})
	if err == nil {
		t.Fatal("expected error for unknown product")
	}
}

package driver

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// modisParse extracts identity from the dotted MODIS naming convention:
// <product>.A<yyyyddd>[.<tile>].<collection>.<production stamp>.hdf
func modisParse(fixedTile string) func(string, map[string]string) (*ParsedName, error) {
	return func(name string, groups map[string]string) (*ParsedName, error) {
		date, err := ParseDate("%Y%j", groups["date"])
		if err != nil {
			return nil, fmt.Errorf("acquisition date: %w", err)
		}
		tile := fixedTile
		if t, ok := groups["tile"]; ok && t != "" {
			tile = t
		}
		coll, err := strconv.Atoi(groups["coll"])
		if err != nil {
			return nil, fmt.Errorf("collection number: %w", err)
		}
		stamp, err := strconv.ParseFloat(groups["prod"], 64)
		if err != nil {
			return nil, fmt.Errorf("production stamp: %w", err)
		}
		return &ParsedName{
			Tile:   tile,
			Sensor: name[:3],
			Dates:  []time.Time{date},
			// Collection dominates; the production stamp breaks ties
			// between reprocessings within a collection.
			Version: float64(coll)*1e13 + stamp,
		}, nil
	}
}

func init() {
	Register(&Driver{
		Name:          "modis",
		Description:   "MODIS Aqua and Terra land and atmosphere products",
		DateFormat:    "%Y/%j",
		TileAttribute: "tileid",
		Subdirs:       DefaultSubdirs,
		Sensors: map[string]Sensor{
			"MOD": {Description: "Terra"},
			"MYD": {Description: "Aqua"},
			"MCD": {Description: "Terra and Aqua combined"},
		},
		Assets: map[string]*AssetType{
			"MOD08": {
				Name: "MOD08",
				Pattern: regexp.MustCompile(
					`^MOD08_D3\.A(?P<date>\d{7})\.(?P<coll>\d{3})\.(?P<prod>\d{13})\.hdf$`),
				Sensors:   []string{"MOD"},
				StartDate: time.Date(2000, 2, 18, 0, 0, 0, 0, time.UTC),
				Latency:   7,
				Container: ContainerRaster,
				// MOD08 is a global daily grid published as a single tile.
				Parse: modisParse("h01v01"),
				Remote: &RemoteSpec{
					Source:       "http",
					PathTemplate: "https://ladsweb.modaps.eosdis.nasa.gov/archive/allData/61/MOD08_D3/%Y/%j/",
				},
			},
			"MCD43A4": {
				Name: "MCD43A4",
				Pattern: regexp.MustCompile(
					`^MCD43A4\.A(?P<date>\d{7})\.(?P<tile>h\d{2}v\d{2})\.(?P<coll>\d{3})\.(?P<prod>\d{13})\.hdf$`),
				Sensors:   []string{"MCD"},
				StartDate: time.Date(2000, 2, 18, 0, 0, 0, 0, time.UTC),
				Latency:   15,
				Container: ContainerRaster,
				Parse:     modisParse(""),
				Remote: &RemoteSpec{
					Source:       "http",
					PathTemplate: "https://e4ftl01.cr.usgs.gov/MOTA/MCD43A4.061/%Y/%j/",
				},
			},
		},
		Products: map[string]*Product{
			"aod": {
				Name:        "aod",
				Description: "Aerosol optical depth",
				AssetTypes:  []string{"MOD08"},
			},
			"ltad": {
				Name:        "ltad",
				Description: "Long-term average aerosol optical depth",
				AssetTypes:  []string{"MOD08"},
				Composite:   true,
			},
			"refl": {
				Name:        "refl",
				Description: "Nadir BRDF-adjusted surface reflectance",
				AssetTypes:  []string{"MCD43A4"},
			},
		},
	})
}

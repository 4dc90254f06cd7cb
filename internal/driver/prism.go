package driver

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// prismStabScore orders the release stream: early data is replaced by
// provisional and finally stable releases of the same day.
var prismStabScore = map[string]float64{"stable": 3, "provisional": 2, "early": 1}

func prismParse(name string, groups map[string]string) (*ParsedName, error) {
	date, err := ParseDate("%Y%m%d", groups["date"])
	if err != nil {
		return nil, err
	}
	stab, ok := prismStabScore[groups["stability"]]
	if !ok {
		return nil, fmt.Errorf("unknown stability %q", groups["stability"])
	}
	rev, err := strconv.Atoi(groups["rev"])
	if err != nil {
		return nil, err
	}
	return &ParsedName{
		Tile:   "CONUS",
		Sensor: "prism",
		Dates:  []time.Time{date},
		// Dataset revision dominates; stability breaks ties within one.
		Version: float64(rev) + stab*0.01,
	}, nil
}

func prismAsset(variable string) *AssetType {
	return &AssetType{
		Name: "_" + variable,
		Pattern: regexp.MustCompile(
			`^PRISM_` + variable +
				`_(?P<stability>stable|provisional|early)` +
				`_(?P<scale>[0-9a-z]+?)D(?P<rev>\d+)` +
				`_(?P<date>\d{8})_bil\.zip$`),
		Sensors:   []string{"prism"},
		StartDate: time.Date(1981, 1, 1, 0, 0, 0, 0, time.UTC),
		// Early data appears ahead of the calendar day it describes.
		Latency:   -7,
		Container: ContainerZip,
		Parse:     prismParse,
		Remote: &RemoteSpec{
			Source:       "http",
			PathTemplate: "https://ftp.prism.oregonstate.edu/daily/" + variable + "/%Y/",
		},
	}
}

func init() {
	Register(&Driver{
		Name:          "prism",
		Description:   "PRISM gridded climate data",
		DateFormat:    "%Y%m%d",
		TileAttribute: "id",
		Subdirs:       DefaultSubdirs,
		Sensors: map[string]Sensor{
			"prism": {Description: "PRISM Climate Group gridded data"},
		},
		Assets: map[string]*AssetType{
			"_ppt":  prismAsset("ppt"),
			"_tmin": prismAsset("tmin"),
			"_tmax": prismAsset("tmax"),
		},
		Products: map[string]*Product{
			"ppt": {
				Name:        "ppt",
				Description: "Daily total precipitation",
				AssetTypes:  []string{"_ppt"},
			},
			"tmin": {
				Name:        "tmin",
				Description: "Daily minimum temperature",
				AssetTypes:  []string{"_tmin"},
			},
			"tmax": {
				Name:        "tmax",
				Description: "Daily maximum temperature",
				AssetTypes:  []string{"_tmax"},
			},
		},
	})
}

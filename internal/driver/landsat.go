package driver

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// c1TierScore breaks version ties between collection categories: real-time
// scenes are reprocessed into tier 2 and then tier 1.
var c1TierScore = map[string]float64{"RT": 0, "T2": 0.5, "T1": 0.9}

var c1Epoch = time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)

func landsatParseDN(name string, groups map[string]string) (*ParsedName, error) {
	date, err := ParseDate("%Y%j", groups["year"]+groups["doy"])
	if err != nil {
		return nil, err
	}
	version, err := strconv.Atoi(groups["version"])
	if err != nil {
		return nil, err
	}
	return &ParsedName{
		Tile:    groups["path"] + groups["row"],
		Sensor:  name[:3],
		Dates:   []time.Time{date},
		Version: float64(version),
	}, nil
}

func landsatParseC1(name string, groups map[string]string) (*ParsedName, error) {
	acq, err := ParseDate("%Y%m%d", groups["acq"])
	if err != nil {
		return nil, fmt.Errorf("acquisition date: %w", err)
	}
	proc, err := ParseDate("%Y%m%d", groups["proc"])
	if err != nil {
		return nil, fmt.Errorf("processing date: %w", err)
	}
	coll, err := strconv.Atoi(groups["coll"])
	if err != nil {
		return nil, err
	}
	tier, ok := c1TierScore[groups["cat"]]
	if !ok {
		return nil, fmt.Errorf("unknown collection category %q", groups["cat"])
	}
	sat, err := strconv.Atoi(groups["satellite"])
	if err != nil {
		return nil, err
	}
	return &ParsedName{
		Tile:   groups["path"] + groups["row"],
		Sensor: fmt.Sprintf("L%s%d", groups["sensor"], sat),
		Dates:  []time.Time{acq},
		// Collection number dominates, then reprocessing date, then tier.
		Version: 1e6*float64(coll) + float64(proc.Sub(c1Epoch).Hours()/24) + tier,
	}, nil
}

func init() {
	Register(&Driver{
		Name:          "landsat",
		Description:   "Landsat 5 (TM), 7 (ETM+), 8 (OLI)",
		DateFormat:    "%Y%j",
		TileAttribute: "pr",
		Subdirs:       DefaultSubdirs,
		Sensors: map[string]Sensor{
			"LT5": {Description: "Landsat 5 Thematic Mapper"},
			"LE7": {Description: "Landsat 7 Enhanced Thematic Mapper Plus"},
			"LC8": {Description: "Landsat 8 Operational Land Imager"},
		},
		Assets: map[string]*AssetType{
			"DN": {
				Name: "DN",
				Pattern: regexp.MustCompile(
					`^L(?P<sensor>[A-Z])(?P<satellite>\d)` +
						`(?P<path>\d{3})(?P<row>\d{3})` +
						`(?P<year>\d{4})(?P<doy>\d{3})` +
						`(?P<gsi>[A-Z]{3})(?P<version>\d{2})\.tar\.gz$`),
				Sensors:   []string{"LT5", "LE7", "LC8"},
				StartDate: time.Date(1984, 3, 1, 0, 0, 0, 0, time.UTC),
				EndDate:   time.Date(2017, 4, 30, 0, 0, 0, 0, time.UTC),
				Container: ContainerTar,
				Parse:     landsatParseDN,
			},
			"C1": {
				Name: "C1",
				Pattern: regexp.MustCompile(
					`^L(?P<sensor>\w)(?P<satellite>\d{2})_` +
						`(?P<correction>.{4})_(?P<path>\d{3})(?P<row>\d{3})_` +
						`(?P<acq>\d{8})_(?P<proc>\d{8})_` +
						`(?P<coll>\d{2})_(?P<cat>.{2})\.tar\.gz$`),
				Sensors:   []string{"LT5", "LE7", "LC8"},
				StartDate: time.Date(1984, 3, 1, 0, 0, 0, 0, time.UTC),
				Latency:   12,
				Container: ContainerTar,
				Parse:     landsatParseC1,
				Remote: &RemoteSpec{
					Source:       "s3",
					Bucket:       "landsat-pds",
					PathTemplate: "c1/L8/{path}/{row}/",
				},
			},
		},
		Products: map[string]*Product{
			"ndvi-toa": {
				Name:        "ndvi-toa",
				Description: "Normalized difference vegetation index, top of atmosphere",
				AssetTypes:  []string{"C1", "DN"},
			},
			"rad-toa": {
				Name:        "rad-toa",
				Description: "Top of atmosphere radiance",
				AssetTypes:  []string{"C1", "DN"},
			},
			"ref-toa": {
				Name:        "ref-toa",
				Description: "Top of atmosphere reflectance",
				AssetTypes:  []string{"C1", "DN"},
			},
		},
	})
}

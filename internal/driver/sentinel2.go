package driver

import (
	"regexp"
	"strconv"
	"time"
)

func sentinel2Parse(name string, groups map[string]string) (*ParsedName, error) {
	date, err := ParseDate("%Y%m%d", groups["date"])
	if err != nil {
		return nil, err
	}
	// Processing baseline, e.g. N0204 -> 204.
	baseline, err := strconv.Atoi(groups["baseline"])
	if err != nil {
		return nil, err
	}
	return &ParsedName{
		Tile:    groups["tile"],
		Sensor:  groups["satellite"],
		Dates:   []time.Time{date},
		Version: float64(baseline),
	}, nil
}

func init() {
	Register(&Driver{
		Name:          "sentinel2",
		Description:   "Sentinel-2 MultiSpectral Instrument, Level-1C",
		DateFormat:    "%Y%j",
		TileAttribute: "Name",
		Subdirs:       DefaultSubdirs,
		InlineArchive: true,
		Sensors: map[string]Sensor{
			"S2A": {Description: "Sentinel-2A MSI"},
			"S2B": {Description: "Sentinel-2B MSI"},
		},
		Assets: map[string]*AssetType{
			"L1C": {
				Name: "L1C",
				Pattern: regexp.MustCompile(
					`^(?P<satellite>S2[AB])_MSIL1C_` +
						`(?P<date>\d{8})T(?P<time>\d{6})_` +
						`N(?P<baseline>\d{4})_R(?P<orbit>\d{3})_` +
						`T(?P<tile>\d{2}[A-Z]{3})_\d{8}T\d{6}\.zip$`),
				Sensors:   []string{"S2A", "S2B"},
				StartDate: time.Date(2015, 6, 23, 0, 0, 0, 0, time.UTC),
				Latency:   3,
				Container: ContainerZip,
				Parse:     sentinel2Parse,
				Remote: &RemoteSpec{
					Source:       "s3",
					Bucket:       "sentinel-s2-l1c",
					PathTemplate: "tiles/{tile}/%Y/%m/%d/",
				},
			},
		},
		Products: map[string]*Product{
			"ref-toa": {
				Name:        "ref-toa",
				Description: "Top of atmosphere reflectance",
				AssetTypes:  []string{"L1C"},
			},
			"ndvi-toa": {
				Name:        "ndvi-toa",
				Description: "Normalized difference vegetation index, top of atmosphere",
				AssetTypes:  []string{"L1C"},
			},
		},
	})
}

package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"odjitter/internal/logger"
	"odjitter/internal/zones"

	"github.com/joho/godotenv"
)

// 文档注释：候选点分布诊断
// 背景：加权取点时没有候选点的分区会在解聚中途报错；先统计每个分区落入的候选点数，提前暴露空分区。
// 约束：输出按点数升序、同数按分区名排序；存在空分区时以退出码 3 结束。
func main() {
	_ = godotenv.Load(".env")
	l := logger.Setup()
	zonesPath := flag.String("zones", "", "path to a GeoJSON file with named zones")
	nameKey := flag.String("zone-name-key", "InterZone", "zone property holding the zone name")
	subpoints := flag.String("subpoints", "", "GeoJSON file with candidate points")
	weightKey := flag.String("weight-key", "", "numeric subpoint property used as sampling weight")
	flag.Parse()
	if *zonesPath == "" || *subpoints == "" {
		flag.Usage()
		os.Exit(2)
	}
	reg, err := zones.LoadZones(*zonesPath, *nameKey)
	if err != nil {
		l.Error("zones_load_error", "err", err)
		os.Exit(1)
	}
	pts, err := zones.ScrapePoints(*subpoints, *weightKey)
	if err != nil {
		l.Error("subpoints_load_error", "err", err)
		os.Exit(1)
	}
	counts := zones.BuildIndex(pts, reg).Counts()
	ids := reg.IDs()
	sort.Slice(ids, func(i, j int) bool {
		if counts[ids[i]] != counts[ids[j]] {
			return counts[ids[i]] < counts[ids[j]]
		}
		return ids[i] < ids[j]
	})
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "zone\tpoints")
	empty := 0
	for _, id := range ids {
		fmt.Fprintf(tw, "%s\t%d\n", id, counts[id])
		if counts[id] == 0 {
			empty++
		}
	}
	_ = tw.Flush()
	l.Info("zone_stats_done", "zones", len(ids), "points", len(pts), "empty", empty)
	if empty > 0 {
		os.Exit(3)
	}
}

package api

import (
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/GauntletMC/Graphite/internal/world"
)

// Health ответ /health
type Health struct {
	Status     string        `json:"status"`
	Time       int64         `json:"time"`
	Uptime     string        `json:"uptime"`
	Worlds     int           `json:"worlds"`
	Players    int           `json:"players"`
	Chunks     int           `json:"chunks"`
	Loading    int           `json:"loading"`
	Process    ProcessStats  `json:"process"`
	WorldStats []world.Stats `json:"world_stats,omitempty"`
}

// ProcessStats состояние процесса; CPU и RSS пусты без доступа к /proc
type ProcessStats struct {
	CPUPercent *float64 `json:"cpu_percent,omitempty"`
	RSSMB      *float64 `json:"rss_mb,omitempty"`
	HeapMB     float64  `json:"heap_mb"`
	SysMB      float64  `json:"sys_mb"`
	NumGC      uint32   `json:"num_gc"`
	Goroutines int      `json:"goroutines"`
}

type healthProbe struct {
	start time.Time
	proc  *process.Process
	now   func() time.Time
}

func newHealthProbe() *healthProbe {
	hp := &healthProbe{start: time.Now(), now: time.Now}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		hp.proc = p
	}
	return hp
}

// snapshot сводит процесс и миры; detailed добавляет статистику каждого мира
func (hp *healthProbe) snapshot(worlds []*world.World, detailed bool) Health {
	now := hp.now()
	h := Health{
		Status:  "ok",
		Time:    now.Unix(),
		Uptime:  now.Sub(hp.start).Truncate(time.Second).String(),
		Worlds:  len(worlds),
		Process: hp.process(),
	}
	for _, w := range worlds {
		st := w.Stats()
		h.Players += st.Players
		h.Chunks += st.Chunks
		h.Loading += st.Loading
		if detailed {
			h.WorldStats = append(h.WorldStats, st)
		}
	}
	return h
}

func (hp *healthProbe) process() ProcessStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	ps := ProcessStats{
		HeapMB:     toMB(m.HeapAlloc),
		SysMB:      toMB(m.Sys),
		NumGC:      m.NumGC,
		Goroutines: runtime.NumGoroutine(),
	}
	if hp.proc == nil {
		return ps
	}
	if cpu, err := hp.proc.CPUPercent(); err == nil {
		ps.CPUPercent = &cpu
	}
	if info, err := hp.proc.MemoryInfo(); err == nil {
		rss := toMB(info.RSS)
		ps.RSSMB = &rss
	}
	return ps
}

func toMB(b uint64) float64 { return float64(b) / 1024 / 1024 }

// Пакет sysinfo — снимок ресурсов хоста для раздела «Сервер» в /stats.
package sysinfo

import (
	"context"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// cpuSampleWindow — окно замера загрузки CPU.
const cpuSampleWindow = 200 * time.Millisecond

// Snapshot — ресурсы хоста. Нулевые поля — значение недоступно.
type Snapshot struct {
	// CPUPercent — загрузка CPU за окно замера
	CPUPercent float64
	// CPUCores — логические ядра
	CPUCores int
	// Load1 — load average за минуту (0 на Windows)
	Load1 float64
	// MemUsed, MemTotal — оперативная память в байтах
	MemUsed  uint64
	MemTotal uint64
	// DiskUsed, DiskTotal — корневой раздел в байтах
	DiskUsed  uint64
	DiskTotal uint64
	// HostUptime — время работы хоста
	HostUptime time.Duration
	// Goroutines — горутины процесса бота
	Goroutines int
}

// MemPercent возвращает долю занятой памяти в процентах.
func (s Snapshot) MemPercent() float64 {
	return percent(s.MemUsed, s.MemTotal)
}

// DiskPercent возвращает долю занятого диска в процентах.
func (s Snapshot) DiskPercent() float64 {
	return percent(s.DiskUsed, s.DiskTotal)
}

func percent(used, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(used) / float64(total) * 100
}

// Collect собирает снимок. Ошибки отдельных источников не прерывают сбор,
// соответствующие поля остаются нулевыми.
func Collect(ctx context.Context) Snapshot {
	s := Snapshot{
		CPUCores:   runtime.NumCPU(),
		Goroutines: runtime.NumGoroutine(),
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		s.MemUsed, s.MemTotal = vm.Used, vm.Total
	}
	if pct, err := cpu.PercentWithContext(ctx, cpuSampleWindow, false); err == nil && len(pct) > 0 {
		s.CPUPercent = pct[0]
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil && n > 0 {
		s.CPUCores = n
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		s.Load1 = avg.Load1
	}
	if du, err := disk.UsageWithContext(ctx, "/"); err == nil {
		s.DiskUsed, s.DiskTotal = du.Used, du.Total
	}
	if up, err := host.UptimeWithContext(ctx); err == nil {
		s.HostUptime = time.Duration(up) * time.Second
	}
	return s
}

package executor

import (
	"sync"
	"time"

	"github.com/prometheus/procfs"
)

// treeScanInterval is how often a running workload's process tree is
// walked for new descendants.
const treeScanInterval = 250 * time.Millisecond

// processTree remembers every descendant of a workload leader, including
// those that called setsid or setpgid and so left its process group. A
// pid is identified together with its start time so that a reused pid is
// never mistaken for a member.
type processTree struct {
	fs     procfs.FS
	leader int

	mu    sync.Mutex
	known map[int]uint64
}

// newProcessTree returns a tree rooted at leader, or nil when /proc is not
// available.
func newProcessTree(leader int) *processTree {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil
	}
	t := &processTree{fs: fs, leader: leader, known: make(map[int]uint64)}
	t.scan()
	return t
}

// scan records every live process whose parent is the leader or an already
// known member.
func (t *processTree) scan() {
	if t == nil {
		return
	}
	procs, err := t.fs.AllProcs()
	if err != nil {
		return
	}

	stats := make([]procfs.ProcStat, 0, len(procs))
	for _, p := range procs {
		st, err := p.Stat()
		if err != nil || st.State == "Z" {
			continue
		}
		stats = append(stats, st)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.known[t.leader]; !ok {
		for _, st := range stats {
			if st.PID == t.leader {
				t.known[st.PID] = st.Starttime
			}
		}
	}
	// Repeat until no new member is found so grandchildren listed before
	// their parent are picked up in the same scan.
	for added := true; added; {
		added = false
		for _, st := range stats {
			if _, ok := t.known[st.PID]; ok {
				continue
			}
			if _, ok := t.known[st.PPID]; ok || st.PPID == t.leader {
				t.known[st.PID] = st.Starttime
				added = true
			}
		}
	}
}

// live returns the known members that still run, dropping the rest.
func (t *processTree) live() []int {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	var pids []int
	for pid, start := range t.known {
		p, err := t.fs.Proc(pid)
		if err == nil {
			st, err := p.Stat()
			if err == nil && st.Starttime == start && st.State != "Z" {
				pids = append(pids, pid)
				continue
			}
		}
		delete(t.known, pid)
	}
	return pids
}

// watch scans the tree until stop is closed.
func (t *processTree) watch(stop <-chan struct{}) {
	if t == nil {
		return
	}
	ticker := time.NewTicker(treeScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.scan()
		}
	}
}

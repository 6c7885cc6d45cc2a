package httpx

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/aabboodi/edgehub/internal/domain"
	"github.com/aabboodi/edgehub/internal/orchestrator"
)

func NewServer(addr string, orch *orchestrator.Orchestrator) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(fleetPageHTML))
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, orch.CheckHealth(r.Context()))
	})
	mux.HandleFunc("/api/stats", func(w http.ResponseWriter, r *http.Request) {
		stats, err := orch.Stats(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	})
	mux.HandleFunc("/api/devices", func(w http.ResponseWriter, r *http.Request) {
		devices, err := orch.Devices(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, devices)
	})
	mux.HandleFunc("/api/device-status", func(w http.ResponseWriter, r *http.Request) {
		deviceID := strings.TrimSpace(r.URL.Query().Get("device_id"))
		status, err := orch.Status(r.Context(), deviceID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, status)
	})
	mux.HandleFunc("/api/device-insights", func(w http.ResponseWriter, r *http.Request) {
		deviceID := strings.TrimSpace(r.URL.Query().Get("device_id"))
		insights, err := orch.Insights(r.Context(), deviceID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, insights)
	})

	return &http.Server{
		Addr:    addr,
		Handler: mux,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("http json encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if appError, ok := domain.AsAppError(err); ok {
		switch appError.Code {
		case domain.CodeInvalidArgument:
			status = http.StatusBadRequest
		case domain.CodeNotFound:
			status = http.StatusNotFound
		case domain.CodeUnauthenticated:
			status = http.StatusUnauthorized
		case domain.CodeFailedPrecondition:
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

const fleetPageHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>EdgeHub Fleet Status</title>
  <link rel="preconnect" href="https://fonts.googleapis.com">
  <link rel="preconnect" href="https://fonts.gstatic.com" crossorigin>
  <link href="https://fonts.googleapis.com/css2?family=Space+Grotesk:wght@400;600;700&family=JetBrains+Mono:wght@400;600&display=swap" rel="stylesheet">
  <style>
    :root {
      --bg: #0c1016;
      --bg2: #1b2433;
      --card: rgba(17, 24, 35, 0.8);
      --line: #32455e;
      --text: #eaf2ff;
      --muted: #9fb2cc;
      --accent: #63e6a8;
      --accent2: #63b3ff;
      --warn: #ffca63;
      --danger: #ff6b7d;
    }
    * { box-sizing: border-box; }
    body {
      margin: 0;
      color: var(--text);
      background:
        radial-gradient(800px 500px at 10% -20%, rgba(99, 179, 255, 0.28), transparent 70%),
        radial-gradient(900px 540px at 100% 0%, rgba(99, 230, 168, 0.18), transparent 65%),
        linear-gradient(130deg, var(--bg), var(--bg2));
      font-family: "Space Grotesk", "Segoe UI", sans-serif;
      min-height: 100vh;
    }
    .shell { max-width: 1120px; margin: 0 auto; padding: 28px 18px 40px; }
    .headline {
      display: flex;
      justify-content: space-between;
      align-items: end;
      gap: 14px;
      margin-bottom: 18px;
    }
    h1 { margin: 0; letter-spacing: 0.04em; font-weight: 700; font-size: clamp(1.5rem, 2vw, 2.1rem); }
    .tag { color: var(--muted); font-family: "JetBrains Mono", monospace; font-size: 12px; }
    .cards { display: grid; grid-template-columns: repeat(4, minmax(0, 1fr)); gap: 10px; margin-bottom: 14px; }
    .card {
      background: var(--card);
      border: 1px solid var(--line);
      border-radius: 12px;
      padding: 12px;
      backdrop-filter: blur(8px);
    }
    .k {
      font-family: "JetBrains Mono", monospace;
      font-size: 11px;
      color: var(--muted);
      margin-bottom: 8px;
      text-transform: uppercase;
      letter-spacing: 0.06em;
    }
    .v { font-size: 1.3rem; font-weight: 700; }
    button {
      border-radius: 10px;
      border: 1px solid #3f6f91;
      background: linear-gradient(90deg, rgba(99, 179, 255, 0.22), rgba(99, 230, 168, 0.2));
      color: var(--text);
      padding: 10px 14px;
      font: inherit;
      cursor: pointer;
      font-weight: 600;
    }
    .table-wrap { background: var(--card); border: 1px solid var(--line); border-radius: 12px; overflow: auto; }
    table { width: 100%; border-collapse: collapse; min-width: 760px; }
    th, td {
      padding: 10px 11px;
      text-align: left;
      border-bottom: 1px solid rgba(50, 69, 94, 0.55);
      font-size: 14px;
    }
    th { font-size: 11px; color: var(--muted); text-transform: uppercase; letter-spacing: 0.07em; }
    .mono { font-family: "JetBrains Mono", monospace; }
    .ok { color: var(--accent); }
    .bad { color: var(--danger); }
    .warn { color: var(--warn); }
    @media (max-width: 920px) {
      .cards { grid-template-columns: repeat(2, minmax(0, 1fr)); }
    }
  </style>
</head>
<body>
  <main class="shell">
    <section class="headline">
      <div>
        <h1>EdgeHub Fleet Status</h1>
        <div class="tag">Read-only view of offload decisions, device health, and processing latency.</div>
      </div>
      <button id="refreshBtn">Refresh</button>
    </section>

    <section class="cards">
      <article class="card"><div class="k">Devices</div><div id="devices" class="v">-</div></article>
      <article class="card"><div class="k">Requests</div><div id="requests" class="v">-</div></article>
      <article class="card"><div class="k">Success Rate</div><div id="successRate" class="v">-</div></article>
      <article class="card"><div class="k">p95 Latency</div><div id="p95" class="v">-</div></article>
    </section>

    <section class="table-wrap">
      <table>
        <thead>
          <tr>
            <th>Device</th>
            <th>Requests</th>
            <th>Success Rate</th>
            <th>Avg Latency</th>
            <th>Top Strategy</th>
            <th>Errors</th>
            <th>Last Seen</th>
          </tr>
        </thead>
        <tbody id="rows"></tbody>
      </table>
    </section>
  </main>
  <script>
    async function fetchJSON(url) {
      const res = await fetch(url);
      if (!res.ok) throw new Error(await res.text());
      return res.json();
    }
    function pct(v) { return (v * 100).toFixed(1) + "%"; }
    function ms(v) { return Number(v || 0).toFixed(0) + " ms"; }
    function topStrategy(prefs) {
      let best = "-", count = 0;
      Object.entries(prefs || {}).forEach(([name, n]) => {
        if (n > count) { best = name; count = n; }
      });
      return best;
    }

    async function refresh() {
      const stats = await fetchJSON("/api/stats");
      document.getElementById("devices").textContent = stats.total_devices;
      document.getElementById("requests").textContent = stats.total_requests;
      document.getElementById("successRate").textContent = pct(stats.overall_success_rate || 0);
      document.getElementById("p95").textContent = ms(stats.performance_metrics.p95_processing_time_ms);

      const devices = await fetchJSON("/api/devices");
      const rows = document.getElementById("rows");
      rows.innerHTML = "";
      devices.forEach((device) => {
        const tr = document.createElement("tr");
        const rateCls = device.success_rate >= 0.95 ? "ok" : device.success_rate >= 0.8 ? "warn" : "bad";
        tr.innerHTML =
          '<td class="mono">' + device.device_id + '</td>' +
          '<td class="mono">' + (device.total_requests || 0) + '</td>' +
          '<td class="mono ' + rateCls + '">' + pct(device.success_rate || 0) + '</td>' +
          '<td class="mono">' + ms(device.average_processing_time_ms || 0) + '</td>' +
          '<td class="mono">' + topStrategy(device.preferred_strategies) + '</td>' +
          '<td class="mono">' + (device.error_patterns || []).length + '</td>' +
          '<td class="mono">' + (device.last_seen || "-") + '</td>';
        rows.appendChild(tr);
      });
    }

    document.getElementById("refreshBtn").addEventListener("click", () => refresh().catch(console.error));
    refresh().catch(console.error);
    setInterval(() => refresh().catch(console.error), 5000);
  </script>
</body>
</html>`

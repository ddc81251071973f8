package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/relay-controller/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"onOff": func(on bool) string {
		if on {
			return "ON"
		}
		return "OFF"
	},
	"orUnknown": func(s string) string {
		if s == "" {
			return "unknown"
		}
		return s
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Config.DeviceName}}</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.connected, .online { color: green; }
.disconnected, .failed { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>{{.Config.DeviceName}}<span id="live-dot" class="live-dot pending" title="connecting"></span></h1>
{{if .SetupMode}}<p><strong>Setup mode</strong></p>{{end}}

<h2>Outputs</h2>
<table>
{{range $i, $on := .Outputs}}<tr><th>Output {{$i}}</th><td id="out-{{$i}}" class="{{if $on}}on{{else}}off{{end}}">{{onOff $on}}</td><td><button data-index="{{$i}}">toggle</button></td></tr>
{{else}}<tr><td>No outputs configured</td></tr>
{{end}}</table>

<h2>Sensors</h2>
<table>
{{range .Sensors}}<tr><th>Sensor {{.Index}} ({{.Kind}})</th><td id="sensor-{{.Index}}">{{if eq .Kind "climate"}}{{printf "%.1f" .Temperature}}&deg;C {{printf "%.0f" .Humidity}}%{{else if eq .Kind "light"}}{{printf "%.0f" .Light}}%{{else if eq .Kind "moisture"}}{{printf "%.0f" .Moisture}}%{{end}}</td></tr>
{{else}}<tr><td>No sensors configured</td></tr>
{{end}}</table>

<h2>Connectivity</h2>
<table>
<tr><th>Network</th><td class="{{orUnknown .Connectivity}}">{{orUnknown .Connectivity}}{{if .Attempt}} (attempt {{.Attempt}}){{end}}</td></tr>
{{if .Network}}<tr><th>Interface</th><td>{{.Network.Interface}}{{if .Network.SSID}} ({{.Network.SSID}}){{end}}</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
<tr><th>Cloud</th><td class="{{orUnknown .Cloud}}">{{if .Config.CloudEnabled}}{{orUnknown .Cloud}}{{if .CloudBuffered}} ({{.CloudBuffered}} buffered){{end}}{{else}}disabled{{end}}</td></tr>
{{if .Config.CloudEnabled}}<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>{{end}}
<tr><th>Socket peers</th><td>{{.Peers}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Indicator</th><td>{{.Program}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Tick</th><td>{{.Config.TickMs}}ms</td></tr>
<tr><th>Sensor interval</th><td>{{.Config.SensorIntervalMs}}ms</td></tr>
<tr><th>GPIO</th><td>{{.Config.Chip}} pins {{.Config.Pins}}{{if .Config.ActiveLow}} (active low){{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/metrics">metrics</a></p>
<script>
(function() {
  var dot = document.getElementById("live-dot");
  var sock;

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  function setOutput(i, on) {
    var el = document.getElementById("out-" + i);
    if (!el) return;
    el.textContent = on ? "ON" : "OFF";
    el.className = on ? "on" : "off";
  }

  function setSensor(m) {
    var el = document.getElementById("sensor-" + m.sensor);
    if (!el) return;
    if (m.temperature !== undefined) {
      el.textContent = m.temperature.toFixed(1) + "°C " + Math.round(m.humidity) + "%";
    } else {
      el.textContent = Math.round(m.light !== undefined ? m.light : m.moisture) + "%";
    }
  }

  function connect() {
    var proto = location.protocol === "https:" ? "wss://" : "ws://";
    sock = new WebSocket(proto + location.host + "/ws");
    sock.onopen = function() { setDot("ok", "live"); };
    sock.onclose = function() {
      setDot("err", "offline");
      setTimeout(connect, 5000);
    };
    sock.onmessage = function(ev) {
      try {
        var m = JSON.parse(ev.data);
        if (m.type === "relay") {
          setOutput(m.index, m.state);
        } else if (m.sensor !== undefined) {
          setSensor(m);
        }
      } catch (e) {}
    };
  }

  document.querySelectorAll("button[data-index]").forEach(function(b) {
    b.addEventListener("click", function() {
      var i = parseInt(b.dataset.index, 10);
      var on = document.getElementById("out-" + i).textContent !== "ON";
      if (sock && sock.readyState === WebSocket.OPEN) {
        sock.send(JSON.stringify({type: "relay", index: i, state: on}));
      }
    });
  });

  connect();
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}

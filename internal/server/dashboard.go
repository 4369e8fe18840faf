package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>ScamShield</title>
    <meta name="description" content="Live scam risk monitoring for phone calls">
    <link rel="icon" href="data:image/svg+xml,<svg xmlns='http://www.w3.org/2000/svg' viewBox='0 0 100 100'><text y='.9em' font-size='90'>&#128737;</text></svg>">
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }

        :root {
            --bg: #09090b;
            --bg-subtle: #18181b;
            --border: #27272a;
            --text: #fafafa;
            --text-secondary: #a1a1aa;
            --text-tertiary: #52525b;
            --accent: #22c55e;
            --tier-low: #22c55e;
            --tier-medium: #f59e0b;
            --tier-high: #f97316;
            --tier-critical: #ef4444;
        }

        body {
            font-family: -apple-system, 'Segoe UI', sans-serif;
            background: var(--bg);
            color: var(--text);
            min-height: 100vh;
            font-size: 14px;
            line-height: 1.5;
            -webkit-font-smoothing: antialiased;
        }

        .mono { font-family: ui-monospace, 'SF Mono', monospace; }

        .container { max-width: 960px; margin: 0 auto; padding: 32px 24px; }

        header {
            display: flex;
            align-items: baseline;
            justify-content: space-between;
            border-bottom: 1px solid var(--border);
            padding-bottom: 16px;
            margin-bottom: 24px;
        }
        header h1 { font-size: 18px; font-weight: 600; }
        header .status { color: var(--text-secondary); font-size: 12px; }
        header .status.live::before {
            content: '\25CF';
            color: var(--accent);
            margin-right: 6px;
        }

        .events {
            display: flex;
            flex-direction: column;
            gap: 8px;
        }
        .event {
            display: grid;
            grid-template-columns: 110px 1fr auto;
            gap: 12px;
            padding: 12px 16px;
            background: var(--bg-subtle);
            border: 1px solid var(--border);
            border-radius: 8px;
            align-items: baseline;
        }
        .event .type { color: var(--text-secondary); font-size: 12px; }
        .event .detail { color: var(--text); }
        .event .time { color: var(--text-tertiary); font-size: 12px; }

        .tier {
            display: inline-block;
            padding: 1px 8px;
            border-radius: 9999px;
            font-size: 12px;
            font-weight: 500;
            text-transform: uppercase;
        }
        .tier.low { color: var(--tier-low); border: 1px solid var(--tier-low); }
        .tier.medium { color: var(--tier-medium); border: 1px solid var(--tier-medium); }
        .tier.high { color: var(--tier-high); border: 1px solid var(--tier-high); }
        .tier.critical { color: var(--tier-critical); border: 1px solid var(--tier-critical); }

        .empty {
            color: var(--text-tertiary);
            text-align: center;
            padding: 48px 0;
        }

        footer {
            margin-top: 32px;
            color: var(--text-tertiary);
            font-size: 12px;
        }
        footer a { color: var(--text-secondary); }
    </style>
</head>
<body>
    <div class="container">
        <header>
            <h1>ScamShield</h1>
            <span id="status" class="status">connecting&hellip;</span>
        </header>

        <div id="events" class="events">
            <div id="empty" class="empty">Waiting for call activity&hellip;</div>
        </div>

        <footer>
            Live alerts stream over <span class="mono">/ws</span> &middot;
            API reference at <a href="/v1/auth/info" class="mono">/v1/auth/info</a> &middot;
            Metrics at <a href="/metrics" class="mono">/metrics</a>
        </footer>
    </div>

    <script>
        const events = document.getElementById('events');
        const empty = document.getElementById('empty');
        const status = document.getElementById('status');
        const MAX_EVENTS = 50;

        function describe(evt) {
            const d = evt.data || {};
            switch (evt.type) {
                case 'alert':
                    return 'Alert on ' + (d.sessionId || '?') +
                        (d.scamCategory ? ' · ' + d.scamCategory : '');
                case 'session_started':
                    return 'Call started from ' + (d.phoneNumber || '?');
                case 'session_ended':
                    return 'Call ended · ' + (d.fragments || 0) + ' fragments' +
                        (d.endReason ? ' · ' + d.endReason : '');
                case 'scammer_match':
                    return 'Known scammer voice matched · similarity ' +
                        (d.similarity != null ? d.similarity.toFixed(3) : '?');
                default:
                    return JSON.stringify(d);
            }
        }

        function render(evt) {
            empty.style.display = 'none';
            const d = evt.data || {};
            const div = document.createElement('div');
            div.className = 'event';

            let detail = describe(evt);
            if (d.tier) {
                detail += ' <span class="tier ' + d.tier + '">' + d.tier + '</span>';
            }

            div.innerHTML =
                '<span class="type mono">' + evt.type + '</span>' +
                '<span class="detail">' + detail + '</span>' +
                '<span class="time">' + new Date(evt.timestamp).toLocaleTimeString() + '</span>';
            events.prepend(div);

            while (events.children.length > MAX_EVENTS + 1) {
                events.removeChild(events.lastChild);
            }
        }

        function connect() {
            const proto = location.protocol === 'https:' ? 'wss:' : 'ws:';
            const ws = new WebSocket(proto + '//' + location.host + '/ws');

            ws.onopen = () => {
                status.textContent = 'live';
                status.className = 'status live';
                ws.send(JSON.stringify({ allEvents: true }));
            };
            ws.onmessage = (msg) => {
                try { render(JSON.parse(msg.data)); } catch (e) { /* ignore */ }
            };
            ws.onclose = () => {
                status.textContent = 'reconnecting…';
                status.className = 'status';
                setTimeout(connect, 3000);
            };
        }

        connect();
    </script>
</body>
</html>`

// dashboardHandler serves the live monitoring page
func dashboardHandler(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, dashboardHTML)
}

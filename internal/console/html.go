package console

const indexHTML = `
<!DOCTYPE html>
<html lang="es">
<head>
    <meta charset="utf-8">
    <title>Detección de residuos</title>
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body { font-family: sans-serif; margin: 0; background: #111; color: #eee; }
        .app { max-width: 1100px; margin: 0 auto; padding: 16px; }
        .grid { display: grid; grid-template-columns: 2fr 1fr; gap: 16px; }
        .panel { background: #1d1d1d; border-radius: 8px; padding: 12px; }
        .controls { display: flex; gap: 8px; margin: 12px 0; }
        button { padding: 8px 16px; border: 0; border-radius: 4px; cursor: pointer; }
        .status { font-size: 13px; min-height: 18px; margin: 2px 0; }
        .status.info { color: #8f8; }
        .status.warning { color: #fd6; }
        .status.error { color: #f66; }
        .badge { padding: 2px 8px; border-radius: 4px; background: #444; }
        .badge.acquiring { background: #2a6; }
        img.frame { width: 100%; background: #000; min-height: 240px; }
        table { border-collapse: collapse; width: 100%; }
        td, th { text-align: left; padding: 4px; border-bottom: 1px solid #333; }
    </style>
</head>
<body>
<div class="app">
    <h1>Detección de residuos <span class="badge" id="state">idle</span></h1>
    <div class="grid">
        <div class="panel">
            <img class="frame" id="frame" alt="Última imagen anotada">
            <div class="controls">
                <button id="btn-start">Iniciar detección</button>
                <button id="btn-stop">Detener detección</button>
                <button id="btn-capture">Capturar</button>
            </div>
            <div class="status" id="status-start"></div>
            <div class="status" id="status-stop"></div>
            <div class="status" id="status-capture"></div>
            <div class="status" id="status-acquisition"></div>
        </div>
        <div class="panel">
            <h2>Última captura</h2>
            <img class="frame" id="capture" alt="Última captura">
            <p id="capture-caption"></p>
            <h2>Resumen ({{LOG_NAME}})</h2>
            <table id="summary"></table>
            <img id="chart" alt="Clase / Cantidad" style="display:none">
        </div>
    </div>
</div>
<script>
    const pollMs = {{POLL_MS}};
    const controls = ['start', 'stop', 'capture', 'acquisition'];
    let lastFrame = -1;
    let lastCapture = '';

    async function post(path) {
        await fetch(path, { method: 'POST' });
        refreshStatus();
    }
    document.getElementById('btn-start').onclick = () => post('/api/start');
    document.getElementById('btn-stop').onclick = () => post('/api/stop');
    document.getElementById('btn-capture').onclick = () => post('/api/capture');

    async function refreshStatus() {
        const resp = await fetch('/api/status');
        if (!resp.ok) return;
        const status = await resp.json();
        const s = status.session;

        const badge = document.getElementById('state');
        badge.textContent = s.state;
        badge.className = 'badge ' + s.state;

        for (const c of controls) {
            const el = document.getElementById('status-' + c);
            const st = status.controls[c];
            el.textContent = st ? st.message : '';
            el.className = 'status ' + (st ? st.level : '');
        }

        if (s.frame_number !== lastFrame) {
            lastFrame = s.frame_number;
            document.getElementById('frame').src = '/api/frame.jpg?n=' + lastFrame;
        }
        if (s.last_capture && s.last_capture !== lastCapture) {
            lastCapture = s.last_capture;
            document.getElementById('capture').src = '/api/capture/last.jpg?f=' + encodeURIComponent(lastCapture);
            document.getElementById('capture-caption').textContent = 'Captura ' + lastCapture;
            refreshSummary();
        }
    }

    async function refreshSummary() {
        const resp = await fetch('/api/summary');
        if (!resp.ok) return;
        const summary = await resp.json();
        const table = document.getElementById('summary');
        const chart = document.getElementById('chart');
        table.innerHTML = '';
        if (summary.total === 0) {
            chart.style.display = 'none';
            return;
        }
        const head = table.insertRow();
        head.innerHTML = '<th>Clase</th><th>Cantidad</th>';
        for (const e of summary.classes) {
            const row = table.insertRow();
            row.insertCell().textContent = e.clase;
            row.insertCell().textContent = e.cantidad;
        }
        chart.src = '/api/summary/chart.png?t=' + Date.now();
        chart.style.display = 'block';
    }

    setInterval(refreshStatus, pollMs);
    refreshStatus();
    refreshSummary();
</script>
</body>
</html>
`

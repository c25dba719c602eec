package server

// indexHTML is the browser widget. Kept inline so the binary is
// self-contained; the page talks to the JSON endpoints and the /events
// stream only.
const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>VoiceNote</title>
    <style>
        body { font-family: system-ui, sans-serif; background: #11131a; color: #e8e8ec;
               display: flex; justify-content: center; align-items: center; min-height: 100vh; margin: 0; }
        .widget { background: #1b1e28; border-radius: 14px; padding: 28px 32px; width: 420px; }
        h1 { font-size: 1.1rem; margin: 0 0 16px; }
        .bars { display: flex; align-items: center; gap: 4px; height: 56px; margin: 18px 0; }
        .bars span { width: 10px; background: #5b8cff; border-radius: 3px; height: 4px;
                     transition: height 40ms linear; }
        .controls { display: flex; gap: 12px; }
        button { flex: 1; padding: 10px 0; border: 0; border-radius: 8px; font-size: 0.95rem;
                 cursor: pointer; background: #2a2f40; color: #e8e8ec; }
        button.active { background: #c0392b; }
        #notice { min-height: 1.2em; font-size: 0.85rem; color: #e0a43a; margin-top: 12px; }
        #state { font-size: 0.8rem; color: #8a8fa3; margin-top: 6px; }
    </style>
</head>
<body>
<div class="widget">
    <h1>VoiceNote</h1>
    <div class="bars" id="bars"></div>
    <div class="controls">
        <button id="record">Record</button>
        <button id="play">Play</button>
    </div>
    <div id="notice"></div>
    <div id="state"></div>
</div>
<script>
const BAR_COUNT = __BAR_COUNT__;
const barsEl = document.getElementById('bars');
for (let i = 0; i < BAR_COUNT; i++) barsEl.appendChild(document.createElement('span'));
const bars = barsEl.children;

const recordBtn = document.getElementById('record');
const playBtn = document.getElementById('play');
const noticeEl = document.getElementById('notice');
const stateEl = document.getElementById('state');

function setState(state) {
    stateEl.textContent = state;
    recordBtn.textContent = state === 'RECORDING' ? 'Stop' : 'Record';
    recordBtn.classList.toggle('active', state === 'RECORDING');
}

function setFrame(frame) {
    for (let i = 0; i < bars.length && i < frame.length; i++) {
        bars[i].style.height = frame[i] + 'px';
    }
}

const events = new EventSource('/events');
events.onmessage = (e) => {
    const ev = JSON.parse(e.data);
    if (ev.type === 'state') setState(ev.state);
    else if (ev.type === 'frame') setFrame(ev.frame);
    else if (ev.type === 'notice') {
        noticeEl.textContent = ev.message;
        setTimeout(() => { noticeEl.textContent = ''; }, 4000);
    }
};

recordBtn.onclick = () => fetch('/toggle-record', {method: 'POST'});
playBtn.onclick = () => fetch('/toggle-play', {method: 'POST'});

fetch('/status').then(r => r.json()).then(s => setState(s.status));
</script>
</body>
</html>`

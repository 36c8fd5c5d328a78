package httpx

const catalogPageHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>SkillBench Catalog</title>
  <style>
    :root {
      --bg: #08161f;
      --bg2: #102534;
      --card: rgba(12, 28, 39, 0.78);
      --line: #2a4b63;
      --text: #e5f4ff;
      --muted: #9bbacf;
      --accent: #54f2b2;
      --warn: #ffca63;
      --danger: #ff6b7d;
    }
    * { box-sizing: border-box; }
    body {
      margin: 0;
      color: var(--text);
      background: linear-gradient(130deg, var(--bg), var(--bg2));
      font-family: "Segoe UI", sans-serif;
      min-height: 100vh;
    }
    .shell { max-width: 1120px; margin: 0 auto; padding: 28px 18px 40px; }
    h1 { margin: 0 0 6px; letter-spacing: 0.04em; }
    .tag, .k { color: var(--muted); font-family: monospace; font-size: 12px; }
    .card {
      background: var(--card);
      border: 1px solid var(--line);
      border-radius: 12px;
      padding: 12px;
      margin: 14px 0;
    }
    .ask { display: grid; grid-template-columns: 1fr 140px 120px; gap: 10px; }
    input, select, button {
      width: 100%;
      border-radius: 10px;
      border: 1px solid var(--line);
      background: rgba(8, 23, 33, 0.86);
      color: var(--text);
      padding: 10px 11px;
      font: inherit;
    }
    button { cursor: pointer; font-weight: 600; }
    table { width: 100%; border-collapse: collapse; }
    th, td {
      padding: 10px 11px;
      text-align: left;
      border-bottom: 1px solid rgba(42, 75, 99, 0.55);
      font-size: 14px;
    }
    th { font-size: 11px; color: var(--muted); text-transform: uppercase; }
    .mono { font-family: monospace; }
    .ok { color: var(--accent); }
    .warn { color: var(--warn); }
    .bad { color: var(--danger); }
  </style>
</head>
<body>
  <main class="shell">
    <h1>SkillBench</h1>
    <div class="tag">Benchmarked skills and grounded recommendations. Read-only view.</div>

    <section class="card">
      <div class="ask">
        <input id="task" placeholder="describe the task, e.g. harden github actions secrets" />
        <select id="agent">
          <option value="any">any agent</option>
          <option value="codex">codex</option>
          <option value="claude">claude</option>
          <option value="gemini">gemini</option>
        </select>
        <button id="askBtn">Recommend</button>
      </div>
      <div id="answer" class="k" style="margin-top:10px"></div>
    </section>

    <section class="card">
      <table>
        <thead>
          <tr><th>Skill</th><th>Review</th><th>Agents</th><th>Scores</th><th>Avg overall</th></tr>
        </thead>
        <tbody id="rows"></tbody>
      </table>
    </section>
  </main>
  <script>
    async function fetchJSON(url) {
      const res = await fetch(url);
      const body = await res.json();
      if (!res.ok) throw new Error(body.error + ": " + body.detail);
      return body;
    }
    function cell(text, cls) {
      const td = document.createElement("td");
      td.textContent = text;
      if (cls) td.className = cls;
      return td;
    }
    async function loadSkills() {
      const rows = document.getElementById("rows");
      rows.innerHTML = "";
      const items = await fetchJSON("/api/skills");
      items.forEach((item) => {
        const tr = document.createElement("tr");
        const review = item.securityReview.status;
        const avg = Number(item.averageOverallScore || 0);
        tr.appendChild(cell(item.slug, "mono"));
        tr.appendChild(cell(review, review === "approved" ? "ok" : "warn"));
        tr.appendChild(cell((item.agents || []).join(", ") || "-"));
        tr.appendChild(cell(String(item.scoreCount), "mono"));
        tr.appendChild(cell(avg.toFixed(2), "mono " + (avg >= 70 ? "ok" : avg >= 45 ? "warn" : "bad")));
        rows.appendChild(tr);
      });
    }
    async function recommend() {
      const answer = document.getElementById("answer");
      const params = new URLSearchParams({
        task: document.getElementById("task").value.trim(),
        agent: document.getElementById("agent").value,
      });
      try {
        const result = await fetchJSON("/api/recommend?" + params.toString());
        const best = result.recommendation;
        answer.textContent = best.slug + " (" + result.strategy + ", score " + best.finalScore.toFixed(3) + ")";
      } catch (err) {
        answer.textContent = err.message;
      }
    }
    document.getElementById("askBtn").addEventListener("click", recommend);
    loadSkills().catch(console.error);
  </script>
</body>
</html>`

package server

import (
	"html/template"
	"io"

	"github.com/tcross/narrator/internal/speech"
)

type option struct {
	Value   string
	Label   string
	Checked bool
}

type pageData struct {
	Languages    []option
	Genders      []option
	Engines      []option
	Speeds       []option
	Text         string
	DefaultTexts map[speech.Language]string
}

type pageRenderer struct {
	tmpl *template.Template
	data pageData
}

func newPageRenderer() *pageRenderer {
	data := pageData{
		Languages: []option{
			{Value: string(speech.English), Label: "English", Checked: true},
			{Value: string(speech.Japanese), Label: "日本語"},
		},
		Genders: []option{
			{Value: string(speech.Female), Label: "Female", Checked: true},
			{Value: string(speech.Male), Label: "Male"},
		},
		Engines: []option{
			{Value: string(speech.EngineEdge), Label: "Edge TTS", Checked: true},
			{Value: string(speech.EngineGoogle), Label: "Google TTS"},
		},
		Text:         speech.DefaultTexts[speech.English],
		DefaultTexts: speech.DefaultTexts,
	}
	for _, x := range speech.SpeedOptions {
		data.Speeds = append(data.Speeds, option{
			Value:   speech.FormatSpeed(x),
			Label:   speech.FormatSpeed(x) + "×",
			Checked: speech.IsNormalSpeed(x),
		})
	}
	return &pageRenderer{
		tmpl: template.Must(template.New("index").Parse(indexHTML)),
		data: data,
	}
}

func (p *pageRenderer) render(w io.Writer) error {
	return p.tmpl.Execute(w, p.data)
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Narrator</title>
<style>
body { font-family: sans-serif; max-width: 720px; margin: 2em auto; }
fieldset { border: none; padding: 0; margin: 0 0 1em; }
textarea { width: 100%; height: 8em; }
.warning { color: #a60; }
.error { color: #c00; }
</style>
</head>
<body>
<h1>Narrator</h1>
<form id="narration">
<fieldset><legend>Language</legend>
{{range .Languages}}<label><input type="radio" name="language" value="{{.Value}}"{{if .Checked}} checked{{end}}> {{.Label}}</label> {{end}}
</fieldset>
<fieldset><legend>Voice</legend>
{{range .Genders}}<label><input type="radio" name="gender" value="{{.Value}}"{{if .Checked}} checked{{end}}> {{.Label}}</label> {{end}}
</fieldset>
<fieldset><legend>Engine</legend>
{{range .Engines}}<label><input type="radio" name="engine" value="{{.Value}}"{{if .Checked}} checked{{end}}> {{.Label}}</label> {{end}}
</fieldset>
<fieldset><legend>Speed</legend>
{{range .Speeds}}<label><input type="radio" name="speed" value="{{.Value}}"{{if .Checked}} checked{{end}}> {{.Label}}</label> {{end}}
</fieldset>
<textarea name="text">{{.Text}}</textarea>
<p><button type="submit">Generate</button></p>
</form>
<div id="result"></div>
<script>
const defaults = {{.DefaultTexts}};
const form = document.getElementById("narration");
const result = document.getElementById("result");
form.language.forEach(r => r.addEventListener("change", () => {
  form.text.value = defaults[form.language.value] || "";
}));
form.addEventListener("submit", async (e) => {
  e.preventDefault();
  result.textContent = "Generating...";
  const resp = await fetch("/api/narrations", { method: "POST", body: new URLSearchParams(new FormData(form)) });
  const data = await resp.json();
  result.textContent = "";
  if (data.warning) {
    result.insertAdjacentHTML("beforeend", '<p class="warning"></p>');
    result.lastChild.textContent = data.warning;
  }
  if (data.error) {
    result.insertAdjacentHTML("beforeend", '<p class="error"></p>');
    result.lastChild.textContent = data.error;
  }
  if (data.url) {
    const audio = document.createElement("audio");
    audio.controls = true;
    audio.src = data.url;
    result.appendChild(audio);
    const link = document.createElement("a");
    link.href = data.url;
    link.download = data.file_name;
    link.textContent = "Download " + data.file_name;
    result.appendChild(document.createElement("br"));
    result.appendChild(link);
  }
});
</script>
</body>
</html>
`

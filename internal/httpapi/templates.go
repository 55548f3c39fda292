package httpapi

const pageTemplates = `
{{define "form"}}<!doctype html>
<title>OMR Scanning System</title>
<h2>Upload OMR sheet photo</h2>
<form method="post" enctype="multipart/form-data">
  <label>Choose exam version:</label>
  <select name="version">
    {{- range .Versions}}
    <option value="{{.}}"{{if eq . $.Default}} selected{{end}}>{{.}}</option>
    {{- end}}
    {{- if .Identify}}
    <option value="auto">Read from sheet</option>
    {{- end}}
  </select>
  <br><br>
  <input type="file" name="sheet">
  <input type="submit" value="Upload">
</form>
{{end}}

{{define "result"}}<!doctype html>
<title>OMR Scan Results</title>
<h2>Result ({{.Version}})</h2>
<p><b>Total Score:</b> {{.Total}} / {{.MaxTotal}}</p>
<table border="1" cellpadding="6">
  <thead><tr><th>Subject</th><th>Score</th><th>Answers</th></tr></thead>
  <tbody>
    {{- range .Subjects}}
    <tr>
      <td>{{.Name}}</td>
      <td>{{.Score}} / {{.MaxScore}}</td>
      <td>{{.Answers}}</td>
    </tr>
    {{- end}}
  </tbody>
</table>
{{- if .ImageURL}}
<h3>Processed Image</h3>
<img src="{{.ImageURL}}" style="max-width:600px; border:1px solid #ccc;">
{{- end}}
{{- if .Warning}}
<p><i>{{.Warning}}</i></p>
{{- end}}
<br><br>
<a href="/">Upload another sheet</a>
{{end}}
`

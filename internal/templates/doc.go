// Package templates scaffolds the files a new isomorph project needs
// alongside isomorph.json: the stylesheets each application links and an
// example environment file.
//
// # Available Templates
//
//   - counter: the counter stylesheet only
//   - full: stylesheets for every application plus .env.example
//
// # Usage
//
//	tmpl, err := templates.Get("full")
//	if err != nil {
//	    return err
//	}
//	written, err := tmpl.Create(dir, templates.Config{ProjectName: "demo"}, false)
//
// # Template Variables
//
//	{{.ProjectName}}     - Name of the project
//	{{.Addr}}            - Listen address
//	{{.Public}}          - Directory the asset build reads from
package templates

package main

// General API documentation for swaggo. Regenerate docs/ with
// `swag init -g cmd/structd/docs.go -o docs`.
//
// @title           structd API
// @version         1.0
// @description     Turns free-form text into ordered, structured steps using a local model or a remote backend.
//
// @contact.name   structd maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http

package pipeline

import "errors"

var errEmptyQuery = errors.New("query must not be empty")

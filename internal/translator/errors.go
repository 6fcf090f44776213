package translator

import "errors"

var errEmptyAnswer = errors.New("empty translation")

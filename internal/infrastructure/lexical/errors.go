package lexical

import "errors"

var errNoSnapshot = errors.New("lexical snapshot is empty")

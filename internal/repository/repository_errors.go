package repository

import "errors"

var ErrUserDocumentNotFound = errors.New("user document not found")
var ErrEmptyUID = errors.New("uid is required")

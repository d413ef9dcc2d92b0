package sendhandler

// sendForm is the decoded body of POST /messages.
type sendForm struct {
	From    string   `validate:"required"`
	To      []string `validate:"required,min=1,dive,required"`
	Message string   `validate:"required"`
}

type DirectoryResp struct {
	People []string `json:"people"`
	Count  int      `json:"count"`
}

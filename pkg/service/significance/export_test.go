package significance

var ParseResponse = parseResponse

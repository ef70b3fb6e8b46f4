package repository

var SortByCreatedAt = sortByCreatedAt

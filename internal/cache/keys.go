package cache

import "strconv"

const UsersListKey = "users:list:v1"

func UserKey(id int64) string {
	return "users:id:v1:" + strconv.FormatInt(id, 10)
}
